package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the configuration rooted at path, following includes, and
	// returns the merged model.
	Load(ctx context.Context, path string) (*Model, error)
}
