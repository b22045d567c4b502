package embedding

import "context"

// Backend produces raw vectors in its native dimension. The generator is
// responsible for resampling them to the system target dimension.
type Backend interface {
	Name() string
	Model() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Factory builds a fresh backend instance. Batch workers each call the
// factory once so no client handle is ever shared across goroutines.
type Factory func() (Backend, error)
