package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/stash/internal/bus"
	"github.com/mmcdole/stash/internal/domain"
)

// decodeEvent turns a wire payload into the typed payload local subscribers
// expect.
func decodeEvent(name string, data []byte) (any, error) {
	switch name {
	case domain.EventSyncStarted, domain.EventSyncCompleted, domain.EventSyncError:
		var p domain.SyncEvent
		err := json.Unmarshal(data, &p)
		return p, err
	case domain.EventDownloadStarted, domain.EventDownloadProgress,
		domain.EventDownloadCompleted, domain.EventDownloadError:
		var p domain.DownloadEvent
		err := json.Unmarshal(data, &p)
		return p, err
	case domain.EventMetadataUpdate:
		var p domain.MetadataEvent
		err := json.Unmarshal(data, &p)
		return p, err
	}
	return nil, fmt.Errorf("unknown event %q", name)
}

// EventStream consumes the bridge's SSE endpoint and republishes each event
// on the local bus.
type EventStream struct {
	baseURL string
	http    *http.Client
	events  bus.Publisher
	logger  *slog.Logger
}

// NewEventStream creates a stream for the bridge at baseURL. The httpClient
// must not have a request timeout; SSE connections are long-lived.
func NewEventStream(baseURL string, httpClient *http.Client, events bus.Publisher, logger *slog.Logger) *EventStream {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		events:  events,
		logger:  logger,
	}
}

// Run consumes the stream until ctx is canceled, reconnecting with a fixed
// backoff when the connection drops.
func (s *EventStream) Run(ctx context.Context) error {
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("event stream disconnected", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (s *EventStream) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var eventName string
	var data []byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if eventName != "" && data != nil {
				s.deliver(eventName, data)
			}
			eventName, data = "", nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}

func (s *EventStream) deliver(name string, data []byte) {
	payload, err := decodeEvent(name, data)
	if err != nil {
		s.logger.Warn("dropping undecodable event", "event", name, "error", err)
		return
	}
	s.events.Publish(name, payload)
}
