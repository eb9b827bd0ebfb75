// Package adapter defines the per-platform contract and the registry that
// routes URLs to the right implementation. Adapters resolve metadata and run
// downloads; everything else (queueing, progress, retries above the
// transport) is platform-agnostic.
package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/omniget/omniget/internal/types"
)

// Adapter handles one platform.
type Adapter interface {
	// Name identifies the adapter in logs and history.
	Name() string
	// CanHandle reports whether this adapter wants the URL.
	CanHandle(rawurl string) bool
	// GetMediaInfo resolves title, qualities and sizes without downloading.
	GetMediaInfo(ctx context.Context, rawurl string, cfg *types.RuntimeConfig) (*types.MediaInfo, error)
	// Download fetches the media into opts.OutputDir, reporting progress.
	Download(ctx context.Context, info *types.MediaInfo, opts types.DownloadOptions, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (*types.DownloadResult, error)
}

// Registry routes URLs to adapters in registration order; the first adapter
// whose CanHandle accepts wins.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends an adapter. Order matters: register specific adapters
// before catch-alls.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// Find returns the first adapter accepting rawurl.
func (r *Registry) Find(rawurl string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.CanHandle(rawurl) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no adapter handles %s", rawurl)
}

// Names lists registered adapters in routing order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}
