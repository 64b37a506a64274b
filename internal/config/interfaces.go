package config

import "context"

// SecretProvider resolves secret values by key: SSM parameter paths in
// deployed environments, plain environment variables locally.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve. Keys it could not find are omitted.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
