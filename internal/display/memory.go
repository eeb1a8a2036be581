package display

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmorgan81/imagine/internal/log"
	"github.com/puzpuzpuz/xsync/v3"
)

type Blob struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps payloads in process and hands out URLs under Prefix, the way a
// browser hands out object URLs. Blobs live until released.
type MemoryStore struct {
	Prefix string
	blobs  *xsync.MapOf[string, Blob]
}

func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{Prefix: prefix, blobs: xsync.NewMapOf[string, Blob]()}
}

func (s *MemoryStore) Convert(ctx context.Context, data []byte) (Ref, error) {
	if len(data) == 0 {
		return "", errors.New("no image data")
	}
	id, err := newID()
	if err != nil {
		return "", err
	}
	s.blobs.Store(id, Blob{Data: data, ContentType: http.DetectContentType(data)})
	log.FromContextOrDiscard(ctx).Debug("stored blob", "id", id, "bytes", len(data))
	return Ref(s.Prefix + id), nil
}

func (s *MemoryStore) Open(id string) (Blob, bool) {
	return s.blobs.Load(id)
}

func (s *MemoryStore) Release(ctx context.Context, ref Ref) error {
	id, ok := strings.CutPrefix(string(ref), s.Prefix)
	if !ok {
		return errors.New("ref does not belong to this store")
	}
	s.blobs.Delete(id)
	log.FromContextOrDiscard(ctx).Debug("released blob", "id", id)
	return nil
}

func (s *MemoryStore) Len() int {
	return s.blobs.Size()
}
