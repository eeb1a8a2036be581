package handle

import (
	"net/http"
	"strconv"

	"github.com/dmorgan81/imagine/internal/controller"
	"github.com/dmorgan81/imagine/internal/display"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/samber/lo"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type statusResponse struct {
	State   controller.State `json:"state"`
	Prompt  string           `json:"prompt,omitempty"`
	Image   display.Ref      `json:"image,omitempty"`
	Visible bool             `json:"visible"`
}

func toStatus(snap controller.Snapshot) statusResponse {
	return statusResponse{
		State:   snap.State,
		Prompt:  snap.Prompt,
		Image:   lo.Ternary(snap.ImageVisible(), snap.Image, ""),
		Visible: snap.ImageVisible(),
	}
}

// handleImage serves blobs held by the in-memory display store.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.blobs.Open(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// handleAPIGenerate answers 202 with the loading snapshot, or with the settled
// snapshot when ?wait=true. An empty prompt changes nothing and answers 200.
func (s *Server) handleAPIGenerate(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContextOrDiscard(r.Context())

	var req generateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	c, err := s.controller(w, r)
	if err != nil {
		logger.Error("resolving session", log.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "session unavailable"})
		return
	}

	sub := c.Submit(req.Prompt)
	if sub == nil {
		writeJSON(w, http.StatusOK, toStatus(c.Snapshot()))
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		snap, err := sub.Wait(r.Context())
		if err != nil {
			logger.Info("client left before generation settled", "state", snap.State)
			return
		}
		writeJSON(w, http.StatusOK, toStatus(snap))
		return
	}
	writeJSON(w, http.StatusAccepted, toStatus(sub.Accepted()))
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.controller(w, r)
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("resolving session", log.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "session unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, toStatus(c.Snapshot()))
}
