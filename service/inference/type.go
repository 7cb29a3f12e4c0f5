package inference

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

var (
	ErrModelNotFound  = errors.New("inference: model file not found")
	ErrModelEmpty     = errors.New("inference: model could not be read")
	ErrLabelsMismatch = errors.New("inference: output size does not match labels")
	ErrEmptyFrame     = errors.New("inference: empty frame")
)

// Classification is one ranked entry of a model result.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Model is a loaded classification network. Implementations are not required
// to be safe for concurrent use; callers serialize Classify.
type Model interface {
	// Classify returns results ranked by descending confidence. An empty
	// slice with a nil error means the model had nothing to say.
	Classify(ctx context.Context, frame gocv.Mat) ([]Classification, error)
	Name() string
}

type IService interface {
	// Load returns the model handle, loading it on first use or after
	// Invalidate. A failed load is not cached.
	Load() (Model, error)
	// Invalidate drops the cached handle so the next Load reads the files again.
	Invalidate()
	Close() error
}
