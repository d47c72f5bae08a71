package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/mempool"
	"github.com/MeKo-Tech/leafcheck/internal/models"
	"github.com/MeKo-Tech/leafcheck/internal/onnx"
	"github.com/MeKo-Tech/leafcheck/internal/utils"
	ort "github.com/yalue/onnxruntime_go"
)

const defaultInputEdge = 224

// ONNXModel is an ImageNet-style classifier backed by ONNX Runtime.
type ONNXModel struct {
	spec    ModelSpec
	session *ort.DynamicAdvancedSession
	labels  []string
	inH     int
	inW     int
	pool    *mempool.Pool
}

// NewONNXModel loads the model and labels described by spec.
func NewONNXModel(spec ModelSpec) (Model, error) {
	if err := models.ValidateModelExists(spec.ModelPath); err != nil {
		return nil, err
	}
	labels, err := LoadLabels(spec.LabelsPath)
	if err != nil {
		return nil, err
	}
	if err := onnx.EnsureEnvironment(spec.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(spec.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	in, out, err := validateModelIO(inputs, outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying session options: %v\n", err)
		}
	}()
	if err := onnx.ConfigureSessionForGPU(opts, spec.GPU); err != nil {
		slog.Warn("GPU unavailable, using CPU", "model", spec.Name, "error", err)
	}
	if spec.NumThreads > 0 {
		_ = opts.SetIntraOpNumThreads(spec.NumThreads)
	}

	sess, err := ort.NewDynamicAdvancedSession(spec.ModelPath, []string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	m := &ONNXModel{
		spec:    spec,
		session: sess,
		labels:  labels,
		inH:     defaultInputEdge,
		inW:     defaultInputEdge,
		pool:    mempool.Default,
	}
	if h := in.Dimensions[2]; h > 0 {
		m.inH = int(h)
	}
	if w := in.Dimensions[3]; w > 0 {
		m.inW = int(w)
	}
	if m.spec.TopK < 1 {
		m.spec.TopK = DefaultTopK
	}
	return m, nil
}

func validateModelIO(inputs, outputs []ort.InputOutputInfo) (ort.InputOutputInfo, ort.InputOutputInfo, error) {
	if len(inputs) != 1 || len(outputs) < 1 {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 4 {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("expected 4D input, got %dD", len(in.Dimensions))
	}
	if c := in.Dimensions[1]; c > 0 && c != 3 {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("expected 3 input channels, got %d", c)
	}
	return in, out, nil
}

// Name returns the configured model name.
func (m *ONNXModel) Name() string { return m.spec.Name }

// Classify decodes data and returns the top-K labels. The context is only
// checked before inference starts; ONNX Runtime has no cancellation point.
func (m *ONNXModel) Classify(ctx context.Context, data []byte) (diagnosis.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return m.classifyImage(img)
}

func (m *ONNXModel) classifyImage(img image.Image) (diagnosis.Classification, error) {
	if m.session == nil {
		return nil, errors.New("model is closed")
	}

	buf, err := utils.NormalizeImageNet(img, m.inW, m.inH, m.pool)
	if err != nil {
		return nil, err
	}
	defer m.pool.Put(buf)

	tensor, err := onnx.NewImageTensor(buf, 3, m.inH, m.inW)
	if err != nil {
		return nil, err
	}
	input, err := ort.NewTensor(ort.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying input tensor: %v\n", err)
		}
	}()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o == nil {
				continue
			}
			if err := o.Destroy(); err != nil {
				fmt.Fprintf(os.Stderr, "Error destroying output tensor: %v\n", err)
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	shape := out.GetShape()
	if len(shape) != 2 || shape[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	return rank(out.GetData(), m.labels, m.spec.TopK), nil
}

// rank converts raw model output into a ranked classification.
func rank(output []float32, labels []string, k int) diagnosis.Classification {
	var probs []float64
	if onnx.LooksLikeProbabilities(output) {
		probs = make([]float64, len(output))
		for i, v := range output {
			probs[i] = float64(v)
		}
	} else {
		probs = onnx.Softmax(output)
	}
	top := onnx.TopK(probs, k)
	result := make(diagnosis.Classification, 0, len(top))
	for _, r := range top {
		result = append(result, diagnosis.Entry{Label: labelFor(labels, r.Index), Score: r.Prob})
	}
	return result
}

// Warmup runs one inference on a blank image so the first real request
// does not pay for lazy allocation inside the runtime.
func (m *ONNXModel) Warmup() error {
	img := image.NewUniform(color.RGBA{R: 60, G: 140, B: 60, A: 255})
	rgba := image.NewRGBA(image.Rect(0, 0, m.inW, m.inH))
	for y := range m.inH {
		for x := range m.inW {
			rgba.Set(x, y, img.C)
		}
	}
	_, err := m.classifyImage(rgba)
	return err
}

// Close releases the ONNX session.
func (m *ONNXModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
