// File: internal/recognition/localmodel.go
package recognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/xkilldash9x/gatecrash/api/schemas"
	"github.com/xkilldash9x/gatecrash/internal/config"
)

// ortInit guards the process-wide runtime environment. The library tolerates
// exactly one InitializeEnvironment call per process.
var (
	ortInit    sync.Once
	ortInitErr error
)

func initializeRuntime(libraryPath string) error {
	ortInit.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// LocalModel classifies tile images with an on-disk ONNX object detector.
// The model is expected to emit rows of (x1, y1, x2, y2, score, classIndex);
// classification reduces to "any detection of the category above the floor".
type LocalModel struct {
	cfg    config.LocalModelConfig
	logger *zap.Logger

	loadOnce sync.Once
	loadErr  error
	session  *ort.DynamicAdvancedSession
	labels   []string
	mu       sync.Mutex
}

// NewLocalModel wraps the configured model; nothing is loaded until the
// first Classify call so an unused backend costs nothing.
func NewLocalModel(cfg config.LocalModelConfig, logger *zap.Logger) *LocalModel {
	return &LocalModel{cfg: cfg, logger: logger.Named("local_model")}
}

func (m *LocalModel) Name() string { return "local-model" }

// Ready checks configuration and file presence only; the actual session load
// is deferred and its failure surfaces as a runtime error instead.
func (m *LocalModel) Ready() error {
	if m.cfg.ModelPath == "" {
		return fmt.Errorf("%w: no model path configured", ErrUnavailable)
	}
	if _, err := os.Stat(m.cfg.ModelPath); err != nil {
		return fmt.Errorf("%w: model file: %v", ErrUnavailable, err)
	}
	if m.cfg.LabelsPath != "" {
		if _, err := os.Stat(m.cfg.LabelsPath); err != nil {
			return fmt.Errorf("%w: labels file: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (m *LocalModel) load() error {
	m.loadOnce.Do(func() {
		if err := initializeRuntime(m.cfg.LibraryPath); err != nil {
			m.loadErr = fmt.Errorf("onnx runtime init: %w", err)
			return
		}
		session, err := ort.NewDynamicAdvancedSession(m.cfg.ModelPath,
			[]string{"images"}, []string{"output0"}, nil)
		if err != nil {
			m.loadErr = fmt.Errorf("loading model %s: %w", m.cfg.ModelPath, err)
			return
		}
		m.session = session

		if m.cfg.LabelsPath != "" {
			raw, err := os.ReadFile(m.cfg.LabelsPath)
			if err != nil {
				m.loadErr = fmt.Errorf("reading labels: %w", err)
				return
			}
			for _, line := range strings.Split(string(raw), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					m.labels = append(m.labels, line)
				}
			}
		}
		m.logger.Info("Local detection model loaded",
			zap.String("path", m.cfg.ModelPath), zap.Int("labels", len(m.labels)))
	})
	return m.loadErr
}

// Classify runs the detector and reports whether the category appears.
func (m *LocalModel) Classify(ctx context.Context, img []byte, category string) (schemas.RecognitionResult, error) {
	if err := m.load(); err != nil {
		return schemas.RecognitionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return schemas.RecognitionResult{}, err
	}

	canon, ok := CanonicalCategory(category)
	if !ok {
		canon = strings.ToLower(strings.TrimSpace(category))
	}

	data, err := m.tensorData(img)
	if err != nil {
		return schemas.RecognitionResult{}, err
	}

	size := int64(m.cfg.InputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), data)
	if err != nil {
		return schemas.RecognitionResult{}, fmt.Errorf("creating input tensor: %w", err)
	}
	defer input.Destroy()

	// Session.Run is not reentrant for a shared session.
	m.mu.Lock()
	outputs := []ort.Value{nil}
	err = m.session.Run([]ort.Value{input}, outputs)
	m.mu.Unlock()
	if err != nil {
		return schemas.RecognitionResult{}, fmt.Errorf("model inference: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return schemas.RecognitionResult{}, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer out.Destroy()

	best := float64(m.bestScoreFor(out.GetData(), canon))
	return schemas.RecognitionResult{
		Match:      best >= m.cfg.ScoreFloor,
		Confidence: best,
	}, nil
}

// bestScoreFor scans detection rows for the highest score whose class label
// matches the category.
func (m *LocalModel) bestScoreFor(data []float32, category string) float32 {
	const stride = 6
	var best float32
	for i := 0; i+stride <= len(data); i += stride {
		score := data[i+4]
		classIdx := int(data[i+5])
		if classIdx < 0 || classIdx >= len(m.labels) {
			continue
		}
		if !labelMatches(m.labels[classIdx], category) {
			continue
		}
		if score > best {
			best = score
		}
	}
	return best
}

func labelMatches(label, category string) bool {
	canon, ok := CanonicalCategory(label)
	if !ok {
		canon = strings.ToLower(strings.TrimSpace(label))
	}
	return canon == category
}

// tensorData decodes, letterboxes to the square input size and converts the
// image to a normalized NCHW float slice.
func (m *LocalModel) tensorData(img []byte) ([]float32, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decoding tile image: %w", err)
	}

	size := m.cfg.InputSize
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	data := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			o := dst.PixOffset(x, y)
			idx := y*size + x
			data[idx] = float32(dst.Pix[o]) / 255.0
			data[plane+idx] = float32(dst.Pix[o+1]) / 255.0
			data[2*plane+idx] = float32(dst.Pix[o+2]) / 255.0
		}
	}
	return data, nil
}

// Close releases the session. Safe to call when load never happened.
func (m *LocalModel) Close() {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
