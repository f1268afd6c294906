package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"autoeye-traffic-dashboard/internal/snapshot"
	"autoeye-traffic-dashboard/internal/sse"
)

// Snapshots is the read side of snapshot.Store.
type Snapshots interface {
	Get() snapshot.Snapshot
	Changed() <-chan struct{}
}

// Refresher runs the dashboard's manual refresh.
type Refresher interface {
	Refresh(ctx context.Context) error
}

const defaultKeepAlive = 25 * time.Second

type Handler struct {
	snaps     Snapshots
	refresher Refresher
	keepAlive time.Duration
}

func New(snaps Snapshots, refresher Refresher) *Handler {
	return &Handler{snaps: snaps, refresher: refresher, keepAlive: defaultKeepAlive}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", h.GetDashboard)
		r.Post("/refresh", h.PostRefresh)
		r.Get("/events", h.StreamEvents)
	})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"ok":true}`))
}

// GetDashboard returns the latest published snapshot.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.snaps.Get()); err != nil {
		http.Error(w, "failed to encode dashboard", http.StatusInternalServerError)
		return
	}
}

// PostRefresh triggers a traffic and health refresh and answers once both
// settled. A failed refresh is reflected in the snapshot, not the status code.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Refresh(r.Context()); err != nil {
		log.Printf("manual refresh: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(h.snaps.Get()); err != nil {
		log.Printf("encode refresh response: %v", err)
	}
}

// StreamEvents pushes a dashboard event on connect and after every publish.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	log.Printf("sse stream %s opened from %s", id, r.RemoteAddr)
	defer log.Printf("sse stream %s closed", id)

	sse.Prepare(w)
	w.WriteHeader(http.StatusOK)

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	var (
		sent  uint64
		first = true
	)
	for {
		changed := h.snaps.Changed()
		snap := h.snaps.Get()
		if first || snap.Version != sent {
			if err := h.writeSnapshot(w, snap); err != nil {
				log.Printf("sse stream %s: %v", id, err)
				return
			}
			sent, first = snap.Version, false
		}

		select {
		case <-r.Context().Done():
			return
		case <-changed:
		case <-ping.C:
			if err := sse.AddComment(w, "keep-alive"); err != nil {
				return
			}
			sse.Send(w)
		}
	}
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, snap snapshot.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return sse.SendEvent(w, "dashboard", string(b))
}
