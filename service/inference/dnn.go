package inference

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/lgr"
	"github.com/mdobak/go-xerrors"
	"gocv.io/x/gocv"
)

type dnnModel struct {
	name   string
	net    gocv.Net
	labels []string
	params config.ClassifierParameters
}

type dnnService struct {
	params config.ClassifierParameters
	mu     sync.Mutex
	model  *dnnModel
	stale  bool
}

// NewDNN serves a pretrained classifier through the OpenCV DNN module. Any
// format gocv.ReadNet understands works (Caffe, ONNX, TensorFlow, Darknet).
func NewDNN(cfgSvc config.IService) IService {
	return &dnnService{
		params: cfgSvc.GetClassifierParameters(),
	}
}

func (svc *dnnService) Load() (Model, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	// Load and Classify run on the same goroutine, so a stale net is never
	// in use when it is closed here.
	if svc.stale && svc.model != nil {
		svc.model.close()
		svc.model = nil
	}
	svc.stale = false

	if svc.model != nil {
		return svc.model, nil
	}

	m, err := loadDNN(svc.params)
	if err != nil {
		return nil, err
	}

	lgr.Logger.Info("classification model loaded",
		slog.String("model", m.name),
		slog.Int("labels", len(m.labels)),
		slog.String("openCV", gocv.Version()),
	)

	svc.model = m
	return m, nil
}

func (svc *dnnService) Invalidate() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.stale = true
}

func (svc *dnnService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.model != nil {
		svc.model.close()
		svc.model = nil
	}
	return nil
}

func loadDNN(params config.ClassifierParameters) (*dnnModel, error) {
	if _, err := os.Stat(params.ModelPath); err != nil {
		return nil, xerrors.New(fmt.Errorf("%w: %s", ErrModelNotFound, params.ModelPath))
	}

	labels, err := LoadLabels(params.LabelsPath)
	if err != nil {
		return nil, xerrors.New(fmt.Errorf("loading labels %s: %w", params.LabelsPath, err))
	}

	cfgPath := params.ConfigPath
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err != nil {
			return nil, xerrors.New(fmt.Errorf("%w: %s", ErrModelNotFound, cfgPath))
		}
	}

	// WARNING: net is not thread-safe. Classify calls must be serialized.
	net := gocv.ReadNet(params.ModelPath, cfgPath)
	if net.Empty() {
		return nil, xerrors.New(fmt.Errorf("%w: %s", ErrModelEmpty, params.ModelPath))
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, xerrors.New(fmt.Errorf("setting backend: %w", err))
	}

	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, xerrors.New(fmt.Errorf("setting target: %w", err))
	}

	return &dnnModel{
		name:   filepath.Base(params.ModelPath),
		net:    net,
		labels: labels,
		params: params,
	}, nil
}

func (m *dnnModel) Name() string {
	return m.name
}

func (m *dnnModel) Classify(ctx context.Context, frame gocv.Mat) ([]Classification, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := image.Pt(m.params.InputSize, m.params.InputSize)
	mean := gocv.NewScalar(m.params.Mean[0], m.params.Mean[1], m.params.Mean[2], 0)
	blob := gocv.BlobFromImage(frame, m.params.ScaleFactor, size, mean, m.params.SwapRB, false)
	defer blob.Close()

	m.net.SetInput(blob, "")

	prob := m.net.Forward("")
	defer prob.Close()

	if prob.Empty() {
		return nil, nil
	}

	data, err := prob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading model output: %w", err)
	}

	// data aliases prob's memory which is released on return
	scores := make([]float32, len(data))
	copy(scores, data)

	if len(scores) != len(m.labels) {
		return nil, fmt.Errorf("%w: %d scores, %d labels", ErrLabelsMismatch, len(scores), len(m.labels))
	}

	if m.params.Softmax {
		scores = Softmax(scores)
	}

	return Rank(scores, m.labels, m.params.TopK), nil
}

func (m *dnnModel) close() {
	m.net.Close()
}
