// Package preprocess shrinks uploaded photographs before local inference.
package preprocess

import (
	"log/slog"

	"github.com/MeKo-Tech/leafcheck/internal/utils"
)

// Config controls when and how images are re-encoded.
type Config struct {
	// ThresholdBytes is the size below which input passes through untouched.
	ThresholdBytes int
	// TargetEdge bounds the longer side, matched to the classifier input.
	TargetEdge int
	// Quality is the JPEG quality used when re-encoding.
	Quality int
}

// DefaultConfig returns the defaults for a 224px classifier.
func DefaultConfig() Config {
	return Config{
		ThresholdBytes: 500 * 1024,
		TargetEdge:     224,
		Quality:        85,
	}
}

// Handle is a prepared image ready for the classifier.
type Handle struct {
	Data    []byte
	Format  string
	Width   int
	Height  int
	Resized bool
}

// Preparer implements the preprocessing step. It holds no per-call state.
type Preparer struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a Preparer. Zero config fields take their defaults.
func New(cfg Config, logger *slog.Logger) *Preparer {
	def := DefaultConfig()
	if cfg.ThresholdBytes <= 0 {
		cfg.ThresholdBytes = def.ThresholdBytes
	}
	if cfg.TargetEdge <= 0 {
		cfg.TargetEdge = def.TargetEdge
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{cfg: cfg, logger: logger}
}

// Prepare returns small inputs unchanged and re-encodes larger ones at a
// bounded size. It never fails: undecodable input is returned as-is.
func (p *Preparer) Prepare(name string, data []byte) Handle {
	if len(data) < p.cfg.ThresholdBytes {
		return Handle{Data: data}
	}

	img, meta, err := utils.DecodeImage(data)
	if err != nil {
		p.logger.Debug("preprocess: decode failed, using original", "file", name, "error", err)
		return Handle{Data: data}
	}

	resized, err := utils.ResizeToFit(img, p.cfg.TargetEdge)
	if err != nil {
		p.logger.Debug("preprocess: resize failed, using original", "file", name, "error", err)
		return Handle{Data: data, Format: meta.Format, Width: meta.Width, Height: meta.Height}
	}

	encoded, err := utils.EncodeJPEG(resized, p.cfg.Quality)
	if err != nil || len(encoded) >= len(data) {
		p.logger.Debug("preprocess: re-encode not smaller, using original", "file", name, "error", err)
		return Handle{Data: data, Format: meta.Format, Width: meta.Width, Height: meta.Height}
	}

	b := resized.Bounds()
	p.logger.Debug("preprocess: resized",
		"file", name,
		"from_bytes", len(data), "to_bytes", len(encoded),
		"from", []int{meta.Width, meta.Height}, "to", []int{b.Dx(), b.Dy()})

	return Handle{Data: encoded, Format: "jpeg", Width: b.Dx(), Height: b.Dy(), Resized: true}
}
