package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/hybrid-trader/internal/events"
	"github.com/rs/zerolog"
)

const eventBufferSize = 100

// subscription forwards matching bus events to a buffered channel.
// Events are dropped when the consumer falls behind.
type subscription struct {
	bus *events.Bus
	ids []events.SubscriptionID
	ch  chan *events.Event
}

// subscribe listens for types on bus. An empty runID matches every run.
func subscribe(bus *events.Bus, types []events.EventType, runID string, log zerolog.Logger) *subscription {
	sub := &subscription{
		bus: bus,
		ch:  make(chan *events.Event, eventBufferSize),
	}

	handler := func(event *events.Event) {
		if runID != "" && eventRunID(event) != runID {
			return
		}

		// Non-blocking send (drop if channel full)
		select {
		case sub.ch <- event:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	for _, eventType := range types {
		sub.ids = append(sub.ids, bus.Subscribe(eventType, handler))
	}
	return sub
}

// Close removes the subscription from the bus
func (s *subscription) Close() {
	for _, id := range s.ids {
		s.bus.Unsubscribe(id)
	}
}

func eventRunID(event *events.Event) string {
	if event.Data == nil {
		return ""
	}
	id, _ := event.Data["run_id"].(string)
	return id
}

// eventMessage is the wire form of a bus event for stream clients
func eventMessage(event *events.Event) map[string]interface{} {
	return map[string]interface{}{
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"data":      event.Data,
	}
}

// EventsStreamHandler handles Server-Sent Events (SSE) streaming for run events.
type EventsStreamHandler struct {
	eventBus  *events.Bus
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:  eventBus,
		heartbeat: 30 * time.Second,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
// Query parameters: types (comma-separated event types), run_id.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Get flusher for streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// The server write timeout would otherwise end the stream
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug().Err(err).Msg("Could not clear write deadline")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	typesFilter := r.URL.Query().Get("types")
	runID := r.URL.Query().Get("run_id")

	eventTypes := events.AllTypes
	if typesFilter != "" {
		eventTypes = nil
		for _, t := range strings.Split(typesFilter, ",") {
			if t = strings.TrimSpace(t); t != "" {
				eventTypes = append(eventTypes, events.EventType(t))
			}
		}
	}

	h.log.Info().
		Str("types_filter", typesFilter).
		Str("run_id", runID).
		Msg("Client connected to event stream")

	sub := subscribe(h.eventBus, eventTypes, runID, h.log)
	defer sub.Close()

	// Create done channel to detect client disconnect
	done := r.Context().Done()

	// Send initial connection message
	fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	// Heartbeat ticker to keep connection alive
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-sub.ch:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(eventMessage(event)))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// encodeEvent encodes an event map to JSON string.
func (h *EventsStreamHandler) encodeEvent(event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
