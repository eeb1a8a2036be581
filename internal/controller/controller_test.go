package controller

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dmorgan81/imagine/internal/display"
	"github.com/dmorgan81/imagine/internal/image"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR first")
	pngBytes2 = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR second")
)

type result struct {
	data []byte
	err  error
}

type call struct {
	ctx    context.Context
	prompt string
	result chan result
}

type fakeGenerator struct {
	calls chan *call
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{calls: make(chan *call, 8)}
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	c := &call{ctx: ctx, prompt: prompt, result: make(chan result, 1)}
	f.calls <- c
	select {
	case r := <-c.result:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", image.ErrGenerationFailed, ctx.Err())
	}
}

func (f *fakeGenerator) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("generator was not called")
		return nil
	}
}

func wait(t *testing.T, sub *Submission) Snapshot {
	t.Helper()
	require.NotNil(t, sub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := sub.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestEmptyPromptIsIgnored(t *testing.T) {
	gen := newFakeGenerator()
	c := New(context.Background(), gen, display.DataURL{})

	assert.Nil(t, c.Submit(""))
	assert.Equal(t, Snapshot{State: Idle}, c.Snapshot())
	assert.Empty(t, gen.calls)
}

func TestEmptyPromptKeepsPreviousResult(t *testing.T) {
	gen := newFakeGenerator()
	c := New(context.Background(), gen, display.DataURL{})

	sub := c.Submit("a red fox in snow")
	gen.next(t).result <- result{data: pngBytes}
	before := wait(t, sub)

	assert.Nil(t, c.Submit(""))
	assert.Equal(t, before, c.Snapshot())
	assert.Empty(t, gen.calls)
}

func TestSubmitSuccess(t *testing.T) {
	gen := newFakeGenerator()
	c := New(context.Background(), gen, display.DataURL{})

	sub := c.Submit("a red fox in snow")
	loading := c.Snapshot()
	assert.Equal(t, Loading, loading.State)
	assert.False(t, loading.ImageVisible())
	assert.Equal(t, loading, sub.Accepted())

	call := gen.next(t)
	assert.Equal(t, "a red fox in snow", call.prompt)
	call.result <- result{data: pngBytes}

	snap := wait(t, sub)
	assert.Equal(t, Success, snap.State)
	assert.True(t, snap.ImageVisible())
	assert.Equal(t, "a red fox in snow", snap.Prompt)

	data, mediaType, err := display.DecodeDataURL(snap.Image)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, pngBytes, data)
}

func TestSubmitFailure(t *testing.T) {
	var logs bytes.Buffer
	ctx := log.NewContext(context.Background(), log.New(&logs, slog.LevelInfo))

	gen := newFakeGenerator()
	c := New(ctx, gen, display.DataURL{})

	sub := c.Submit("castle at dusk")
	assert.Equal(t, Loading, c.Snapshot().State)
	gen.next(t).result <- result{err: fmt.Errorf("%w: %w", image.ErrGenerationFailed, context.DeadlineExceeded)}

	snap := wait(t, sub)
	assert.Equal(t, Error, snap.State)
	assert.False(t, snap.ImageVisible())
	assert.Empty(t, snap.Image)
	assert.Contains(t, logs.String(), "image generation failed")
	assert.Contains(t, logs.String(), "context deadline exceeded")
}

func TestEveryStateReentersLoading(t *testing.T) {
	gen := newFakeGenerator()
	c := New(context.Background(), gen, display.DataURL{})

	sub := c.Submit("castle at dusk")
	gen.next(t).result <- result{err: image.ErrGenerationFailed}
	assert.Equal(t, Error, wait(t, sub).State)

	sub = c.Submit("castle at dusk")
	assert.Equal(t, Loading, c.Snapshot().State)
	gen.next(t).result <- result{data: pngBytes}
	assert.Equal(t, Success, wait(t, sub).State)

	sub = c.Submit("a red fox in snow")
	assert.Equal(t, Loading, c.Snapshot().State)
	gen.next(t).result <- result{data: pngBytes2}
	assert.Equal(t, Success, wait(t, sub).State)
}

func TestSuccessiveResultsReplaceImage(t *testing.T) {
	ctx := context.Background()
	store := display.NewMemoryStore("/images/")
	gen := newFakeGenerator()
	c := New(ctx, gen, store)

	sub := c.Submit("a red fox in snow")
	gen.next(t).result <- result{data: pngBytes}
	first := wait(t, sub)

	sub = c.Submit("a red fox in snow")
	gen.next(t).result <- result{data: pngBytes2}
	second := wait(t, sub)

	assert.NotEqual(t, first.Image, second.Image)
	assert.Equal(t, 1, store.Len())

	_, ok := store.Open(strings.TrimPrefix(string(first.Image), "/images/"))
	assert.False(t, ok)
	blob, ok := store.Open(strings.TrimPrefix(string(second.Image), "/images/"))
	require.True(t, ok)
	assert.Equal(t, pngBytes2, blob.Data)
}

func TestFailureReleasesPreviousImage(t *testing.T) {
	store := display.NewMemoryStore("/images/")
	gen := newFakeGenerator()
	c := New(context.Background(), gen, store)

	sub := c.Submit("a red fox in snow")
	gen.next(t).result <- result{data: pngBytes}
	wait(t, sub)

	sub = c.Submit("castle at dusk")
	gen.next(t).result <- result{err: image.ErrGenerationFailed}
	assert.Equal(t, Error, wait(t, sub).State)
	assert.Equal(t, 0, store.Len())
}

func TestResubmitCancelsInFlightRequest(t *testing.T) {
	gen := newFakeGenerator()
	c := New(context.Background(), gen, display.DataURL{})

	first := c.Submit("castle at dusk")
	firstCall := gen.next(t)

	second := c.Submit("a red fox in snow")
	secondCall := gen.next(t)

	select {
	case <-firstCall.ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("superseded request was not cancelled")
	}
	assert.ErrorIs(t, firstCall.ctx.Err(), context.Canceled)

	// The superseded submission settles without touching state.
	snap := wait(t, first)
	assert.Equal(t, Loading, snap.State)
	assert.Equal(t, "a red fox in snow", snap.Prompt)

	secondCall.result <- result{data: pngBytes2}
	snap = wait(t, second)
	assert.Equal(t, Success, snap.State)
	data, _, err := display.DecodeDataURL(snap.Image)
	require.NoError(t, err)
	assert.Equal(t, pngBytes2, data)
}

func TestWaitHonoursContext(t *testing.T) {
	gen := newFakeGenerator()
	c := New(context.Background(), gen, display.DataURL{})

	sub := c.Submit("castle at dusk")
	gen.next(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := sub.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Loading, snap.State)
}

func TestClose(t *testing.T) {
	store := display.NewMemoryStore("/images/")
	gen := newFakeGenerator()
	c := New(context.Background(), gen, store)

	sub := c.Submit("a red fox in snow")
	gen.next(t).result <- result{data: pngBytes}
	wait(t, sub)

	sub = c.Submit("castle at dusk")
	call := gen.next(t)

	require.NoError(t, c.Close())
	<-call.ctx.Done()
	wait(t, sub)

	assert.Equal(t, 0, store.Len())
	assert.Nil(t, c.Submit("a red fox in snow"))
	assert.NoError(t, c.Close())
}

func TestStateText(t *testing.T) {
	for _, s := range []State{Idle, Loading, Success, Error} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var parsed State
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "State(9)", State(9).String())
	assert.Error(t, new(State).UnmarshalText([]byte("pending")))
}
