package handle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmorgan81/imagine/internal/controller"
	"github.com/dmorgan81/imagine/internal/display"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/dmorgan81/imagine/internal/page"
	"github.com/dmorgan81/imagine/internal/session"
	"github.com/samber/do"
)

const cookieName = "imagine_session"

type Server struct {
	logger    *slog.Logger
	sessions  *session.Manager
	templator *page.Templator
	blobs     *display.MemoryStore
}

func NewServer(i *do.Injector) (*Server, error) {
	return &Server{
		logger:    do.MustInvoke[*slog.Logger](i),
		sessions:  do.MustInvoke[*session.Manager](i),
		templator: do.MustInvoke[*page.Templator](i),
		blobs:     do.MustInvoke[*display.MemoryStore](i),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
	})

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /images/{id}", s.handleImage)

	mux.HandleFunc("POST /api/generate", s.handleAPIGenerate)
	mux.HandleFunc("GET /api/status", s.handleAPIStatus)

	return s.withLogger(mux)
}

func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With("method", r.Method, "path", r.URL.Path)
		logger.Debug("handling request")
		next.ServeHTTP(w, r.WithContext(log.NewContext(r.Context(), logger)))
	})
}

// controller resolves the caller's session, issuing a cookie for new sessions.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*controller.Controller, error) {
	var current string
	if cookie, err := r.Cookie(cookieName); err == nil {
		current = cookie.Value
	}

	id, c, err := s.sessions.Get(current)
	if err != nil {
		return nil, err
	}
	if id != current {
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return c, nil
}

func (s *Server) render(ctx context.Context, w http.ResponseWriter, snap controller.Snapshot) {
	html, err := s.templator.Template(ctx, page.FromSnapshot(snap))
	if err != nil {
		log.FromContextOrDiscard(ctx).Error("rendering page", log.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}

func readJSON(r *http.Request, dst any) error {
	const maxBytes = 64 << 10
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return errors.New("empty request body")
	}
	return json.Unmarshal(b, dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
