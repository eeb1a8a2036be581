package image

import (
	"context"
	"errors"
)

// ErrGenerationFailed covers every way a generation call can fail. Callers do not
// get a finer classification.
var ErrGenerationFailed = errors.New("image generation failed")

type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

type GeneratorFunc func(ctx context.Context, prompt string) ([]byte, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) ([]byte, error) {
	return f(ctx, prompt)
}
