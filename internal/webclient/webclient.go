package webclient

import (
	"context"

	"github.com/raysh454/fastscan/internal/model"
)

// WebClient fetches a single request. Implementations must be safe for
// sequential use; the nethttp backend is also safe for concurrent use.
type WebClient interface {
	Do(ctx context.Context, req *model.Request) (*model.Response, error)
	Get(ctx context.Context, url string) (*model.Response, error)
	Close() error
}
