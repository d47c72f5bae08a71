package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/leafcheck/internal/classifier"
	"github.com/MeKo-Tech/leafcheck/internal/config"
	"github.com/MeKo-Tech/leafcheck/internal/connectivity"
	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/interpreter"
	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/MeKo-Tech/leafcheck/internal/preprocess"
	"github.com/MeKo-Tech/leafcheck/internal/remote"
)

// components are the shared analysis collaborators built from config.
type components struct {
	deps        orchestrator.Deps
	loader      *classifier.Loader
	interpreter *interpreter.Interpreter
}

// Close releases the classifier sessions.
func (c *components) Close() error {
	return c.loader.Close()
}

func newInterpreter(cfg *config.Config) (*interpreter.Interpreter, error) {
	if cfg.Interpreter.KeywordsFile == "" {
		return interpreter.Default(), nil
	}
	tables, err := interpreter.LoadTables(cfg.Interpreter.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword tables: %w", err)
	}
	return interpreter.New(tables, diagnosis.DefaultCatalog())
}

// buildComponents wires the probe, remote client, preprocessor, classifier
// and interpreter. The classifier loads lazily on first offline analysis.
func buildComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	interp, err := newInterpreter(cfg)
	if err != nil {
		return nil, err
	}

	cc := cfg.ToClassifierConfig()
	if err := cc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}
	loader := classifier.NewLoader(cc,
		classifier.WithLogger(logger),
		classifier.WithInitHook(orchestrator.RecordClassifierInit),
	)

	return &components{
		deps: orchestrator.Deps{
			Prober:      connectivity.New(cfg.ToConnectivityConfig(), connectivity.WithLogger(logger)),
			Predictor:   remote.New(cfg.ToRemoteConfig(), remote.WithInterpreter(interp), remote.WithLogger(logger)),
			Preparer:    preprocess.New(cfg.ToPreprocessConfig(), logger),
			Classifier:  loader,
			Interpreter: interp,
		},
		loader:      loader,
		interpreter: interp,
	}, nil
}
