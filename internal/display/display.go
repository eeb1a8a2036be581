// Package display turns generated image bytes into references a page can render.
package display

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// Ref is an opaque, locally resolvable reference to image data, usable as an img src.
type Ref string

// BytesToDisplayHandle is supplied by the hosting environment.
type BytesToDisplayHandle interface {
	Convert(ctx context.Context, data []byte) (Ref, error)
}

// Releaser is implemented by handles that hold resources until told otherwise.
type Releaser interface {
	Release(ctx context.Context, ref Ref) error
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
