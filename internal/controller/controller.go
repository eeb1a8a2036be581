// Package controller owns the submission state machine for one session:
// idle -> loading -> success | error, re-entered by every new submission.
package controller

import (
	"context"
	"sync"

	"github.com/dmorgan81/imagine/internal/display"
	"github.com/dmorgan81/imagine/internal/image"
	"github.com/dmorgan81/imagine/internal/log"
)

type Controller struct {
	generator image.Generator
	converter display.BytesToDisplayHandle

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	prompt   string
	ref      display.Ref
	seq      uint64
	inflight context.CancelFunc
	closed   bool
}

// New creates an idle controller. Generation calls run under ctx, so cancelling it
// (or calling Close) aborts whatever is in flight.
func New(ctx context.Context, generator image.Generator, converter display.BytesToDisplayHandle) *Controller {
	ctx, cancel := context.WithCancel(ctx)
	return &Controller{
		generator: generator,
		converter: converter,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submission tracks one accepted call to Submit.
type Submission struct {
	c        *Controller
	seq      uint64
	done     chan struct{}
	accepted Snapshot
}

// Accepted is the snapshot taken when the submission was accepted.
func (s *Submission) Accepted() Snapshot {
	return s.accepted
}

func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the submission settles or ctx is done, and returns the
// controller's snapshot at that point. A superseded submission settles as soon as
// its request is cancelled, so the snapshot then reflects the newer submission.
func (s *Submission) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.done:
		return s.c.Snapshot(), nil
	case <-ctx.Done():
		return s.c.Snapshot(), ctx.Err()
	}
}

// Submit starts generating an image for prompt and moves the controller to the
// loading state before returning. An empty prompt is ignored: nothing changes and
// the returned Submission is nil. A submission made while another is in flight
// cancels the earlier one.
func (c *Controller) Submit(prompt string) *Submission {
	if prompt == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.inflight != nil {
		c.inflight()
	}
	c.seq++
	ctx, cancel := context.WithCancel(c.ctx)
	c.inflight = cancel
	c.state = Loading
	c.prompt = prompt
	sub := &Submission{
		c:        c,
		seq:      c.seq,
		done:     make(chan struct{}),
		accepted: Snapshot{State: c.state, Prompt: c.prompt, Image: c.ref},
	}
	c.mu.Unlock()

	go c.run(ctx, cancel, sub, prompt)
	return sub
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, sub *Submission, prompt string) {
	defer close(sub.done)
	defer cancel()

	logger := log.FromContextOrDiscard(ctx).WithGroup("controller").With("prompt", prompt)
	logger.Info("submitting prompt")

	data, err := c.generator.Generate(ctx, prompt)
	var ref display.Ref
	if err == nil {
		ref, err = c.converter.Convert(ctx, data)
	}
	cleanup := context.WithoutCancel(ctx)

	c.mu.Lock()
	if c.closed || sub.seq != c.seq {
		c.mu.Unlock()
		logger.Info("discarding superseded result")
		if ref != "" {
			c.release(cleanup, ref)
		}
		return
	}
	c.inflight = nil
	stale := c.ref
	c.ref = ref
	if err != nil {
		c.state = Error
	} else {
		c.state = Success
	}
	c.mu.Unlock()

	if err != nil {
		logger.Error("image generation failed", log.Err(err))
	} else {
		logger.Info("image ready", "bytes", len(data))
	}
	if stale != "" {
		c.release(cleanup, stale)
	}
}

func (c *Controller) release(ctx context.Context, ref display.Ref) {
	releaser, ok := c.converter.(display.Releaser)
	if !ok {
		return
	}
	if err := releaser.Release(ctx, ref); err != nil {
		log.FromContextOrDiscard(ctx).Warn("releasing image", "ref", ref, log.Err(err))
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Prompt: c.prompt, Image: c.ref}
}

// Close cancels any in-flight submission and releases the current image.
// Submissions made after Close are ignored.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ref := c.ref
	c.ref = ""
	c.mu.Unlock()

	c.cancel()
	if ref == "" {
		return nil
	}
	if releaser, ok := c.converter.(display.Releaser); ok {
		return releaser.Release(context.WithoutCancel(c.ctx), ref)
	}
	return nil
}
