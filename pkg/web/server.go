// Package web serves a read-only debug API over the build state: a JSON
// snapshot of what is dirty per target, and an SSE stream of change batches
// as the watcher applies them. It observes the state; it never mutates it.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/ritzau/build-state/pkg/fsstate"
	"github.com/ritzau/build-state/pkg/logging"
	"github.com/ritzau/build-state/pkg/pubsub"
)

// TargetStatus is the per-target entry of the state snapshot
type TargetStatus struct {
	Target     string              `json:"target"`
	Kind       string              `json:"kind"`
	RebuildAll bool                `json:"rebuild_all"`
	DirtyFiles int                 `json:"dirty_files"`
	Roots      map[string][]string `json:"roots,omitempty"` // root path -> dirty files
}

// Server exposes the debug HTTP API
type Server struct {
	router    *mux.Router
	state     *fsstate.BuildFSState
	roots     *fsstate.RootSet
	publisher *pubsub.SSEPublisher
}

// NewServer creates a debug server over the given state
func NewServer(state *fsstate.BuildFSState, roots *fsstate.RootSet) *Server {
	publisher := pubsub.NewSSEPublisher()

	// changes: keep a short history so a late subscriber sees recent batches
	publisher.ConfigureTopic("changes", pubsub.TopicConfig{
		BufferSize: 20,
		ReplayAll:  false,
	})
	// dirty_state: only the latest snapshot matters
	publisher.ConfigureTopic("dirty_state", pubsub.TopicConfig{
		BufferSize: 1,
		ReplayAll:  false,
	})

	s := &Server{
		router:    mux.NewRouter(),
		state:     state,
		roots:     roots,
		publisher: publisher,
	}
	s.setupRoutes()
	return s
}

// PublishChangeBatch pushes an applied change batch to SSE subscribers
func (s *Server) PublishChangeBatch(batch pubsub.ChangeBatch) {
	if err := s.publisher.Publish("changes", "applied", batch); err != nil {
		logging.Warn("failed to publish change batch", "error", err)
	}
	s.publishDirtyState()
}

// publishDirtyState pushes the current per-target dirty summary
func (s *Server) publishDirtyState() {
	var statuses []pubsub.DirtyStatus
	for _, t := range s.roots.Targets() {
		delta := s.state.Delta(t)
		status := pubsub.DirtyStatus{
			Target:     t.Key(),
			RebuildAll: delta.NeedRebuildAll(),
		}
		for _, files := range delta.Snapshot() {
			status.DirtyFiles += len(files)
		}
		statuses = append(statuses, status)
	}
	if err := s.publisher.Publish("dirty_state", "snapshot", statuses); err != nil {
		logging.Warn("failed to publish dirty state", "error", err)
	}
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestLogger)

	s.router.HandleFunc("/api/subscribe/changes", s.subscribeHandler("changes")).Methods("GET")
	s.router.HandleFunc("/api/subscribe/dirty_state", s.subscribeHandler("dirty_state")).Methods("GET")
	s.router.HandleFunc("/api/state", s.handleState).Methods("GET")
	s.router.HandleFunc("/api/targets", s.handleTargets).Methods("GET")
}

// handleState returns the full dirty snapshot, per target and root
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot(true))
}

// handleTargets returns per-target dirty counts without file lists
func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot(false))
}

func (s *Server) snapshot(includeFiles bool) []TargetStatus {
	var out []TargetStatus
	for _, t := range s.roots.Targets() {
		delta := s.state.Delta(t)
		status := TargetStatus{
			Target:     t.ID,
			Kind:       string(t.Kind),
			RebuildAll: delta.NeedRebuildAll(),
		}
		if includeFiles {
			status.Roots = make(map[string][]string)
		}
		for rd, files := range delta.Snapshot() {
			status.DirtyFiles += len(files)
			if includeFiles {
				status.Roots[rd.RootID()] = files
			}
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// subscribeHandler streams a topic's events as SSE
func (s *Server) subscribeHandler(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sub, err := s.publisher.Subscribe(r.Context(), topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer sub.Close()

		for event := range sub.Events() {
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.Debug("SSE client gone", "topic", topic, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

// Start runs the server on the given port, blocking
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Info("debug server listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Close shuts down the SSE publisher
func (s *Server) Close() error {
	return s.publisher.Close()
}
