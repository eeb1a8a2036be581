package handle

import (
	"net/http"

	"github.com/dmorgan81/imagine/internal/log"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	c, err := s.controller(w, r)
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("resolving session", log.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.render(r.Context(), w, c.Snapshot())
}

// handleGenerate takes the form submission, waits for it to settle while the
// client is still connected, then redirects back to the page.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContextOrDiscard(r.Context())

	c, err := s.controller(w, r)
	if err != nil {
		logger.Error("resolving session", log.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if sub := c.Submit(r.PostFormValue("prompt")); sub != nil {
		snap, err := sub.Wait(r.Context())
		if err != nil {
			logger.Info("client left before generation settled", "state", snap.State)
			return
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
