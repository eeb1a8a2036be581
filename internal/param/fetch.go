package param

import (
	"context"
	"fmt"
)

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
}

// Resolve prefers an explicit value and only consults the fetcher when a path is
// given. Both empty resolves to "".
func Resolve(ctx context.Context, f Fetcher, value, path string) (string, error) {
	if value != "" || path == "" {
		return value, nil
	}
	v, err := f.Fetch(ctx, path)
	if err != nil {
		return "", fmt.Errorf("fetching parameter %s: %w", path, err)
	}
	return v, nil
}
