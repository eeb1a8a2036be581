package handler

import (
	"context"

	"github.com/dmorgan81/imagine/internal/controller"
	"github.com/dmorgan81/imagine/internal/display"
	"github.com/dmorgan81/imagine/internal/image"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/samber/do"
)

type Input struct {
	Prompt string `json:"prompt,omitempty"`
}

type Output struct {
	State  controller.State `json:"state"`
	Prompt string           `json:"prompt,omitempty"`
	Image  display.Ref      `json:"image,omitempty"`
}

// Handler runs one submission per invocation and returns the image inline as a
// data URL. Generation failures are reported through Output.State, not as errors.
type Handler struct {
	generator image.Generator
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		generator: do.MustInvoke[image.Generator](i),
	}, nil
}

func (h *Handler) Handle(ctx context.Context, input Input) (Output, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("Handler").With("input", input)
	log.Info("handling lambda invocation")

	c := controller.New(ctx, h.generator, display.DataURL{})
	defer c.Close()

	sub := c.Submit(input.Prompt)
	if sub == nil {
		return Output{State: controller.Idle}, nil
	}

	snap, err := sub.Wait(ctx)
	if err != nil {
		return Output{}, err
	}

	log.Info("lambda invocation settled", "state", snap.State)
	out := Output{State: snap.State, Prompt: snap.Prompt}
	if snap.ImageVisible() {
		out.Image = snap.Image
	}
	return out, nil
}
