package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mmcdole/stash/internal/bus"
	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
)

// allEvents is every push event the bridge forwards to SSE clients.
var allEvents = []string{
	domain.EventSyncStarted,
	domain.EventSyncCompleted,
	domain.EventSyncError,
	domain.EventDownloadStarted,
	domain.EventDownloadProgress,
	domain.EventDownloadCompleted,
	domain.EventDownloadError,
	domain.EventMetadataUpdate,
}

// Server exposes an Invoker and an event bus over HTTP.
type Server struct {
	inv    gateway.Invoker
	events bus.Bus
	logger *slog.Logger
}

func NewServer(inv gateway.Invoker, events bus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{inv: inv, events: events, logger: logger}
}

// Handler returns the bridge's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /commands/{command}", s.handleCommand)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	command := r.PathValue("command")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, &gateway.Error{Command: command, Code: gateway.CodeValidation, Message: "unreadable body"})
		return
	}
	var params any
	if len(body) > 0 {
		params = json.RawMessage(body)
	}

	var result json.RawMessage
	if err := s.inv.Invoke(r.Context(), command, params, &result); err != nil {
		var gwErr *gateway.Error
		if !errors.As(err, &gwErr) {
			gwErr = &gateway.Error{Command: command, Code: gateway.CodeInternal, Message: err.Error()}
		}
		s.writeError(w, gwErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	w.Write(result)
}

func (s *Server) writeError(w http.ResponseWriter, gwErr *gateway.Error) {
	status := http.StatusInternalServerError
	switch gwErr.Code {
	case gateway.CodeNotFound:
		status = http.StatusNotFound
	case gateway.CodeValidation:
		status = http.StatusBadRequest
	case gateway.CodeConflict:
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(gwErr)
}

type sseEvent struct {
	name string
	data []byte
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Per-connection buffer; a client that cannot keep up loses events
	// rather than stalling the bus.
	ch := make(chan sseEvent, 256)
	scope := bus.NewScope(s.events)
	defer scope.Close()
	for _, name := range allEvents {
		name := name
		scope.Subscribe(name, func(payload any) {
			data, err := json.Marshal(payload)
			if err != nil {
				s.logger.Error("failed to encode event", "event", name, "error", err)
				return
			}
			select {
			case ch <- sseEvent{name: name, data: data}:
			default:
				s.logger.Warn("dropping event for slow client", "event", name)
			}
		})
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		}
	}
}
