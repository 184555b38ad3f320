package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyking-delivery/skytrack/internal/config"
)

// Event types pushed over the stream.
const (
	EventReady     = "ready"
	EventNewData   = "new-data"
	EventHeartbeat = "heartbeat"
)

// Event represents a stream event with SSE formatting.
type Event struct {
	ID   int64       `json:"id,omitempty"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client represents an SSE client connection.
//
// Events is never closed: fan-out sends race client teardown, and a send on
// a closed channel would panic the publishing goroutine. Senders drop after
// a short timeout instead, and the channel is reclaimed once the client
// goroutine exits.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Request *http.Request
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Events  chan Event
	mu      sync.Mutex // Protect Writer access
}

// Hub fans telemetry deltas out to all connected SSE clients.
//
// Delivery is fire-and-forget: no acknowledgment is awaited and a slow
// client's events are dropped rather than blocking the emitter. A bounded
// replay buffer supports Last-Event-ID resume after reconnects.
//
// LOCK ORDERING:
// 1. h.mu (Hub's RWMutex) - protects the clients map and heartbeat state
// 2. EventBuffer.mu - protects buffer contents
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	buffer *EventBuffer
	nextID int64 // atomic

	cfg    *config.StreamConfig
	logger *log.Logger

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// EventBuffer maintains a bounded buffer of recent events for replay.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewHub creates a telemetry hub with the given stream configuration.
func NewHub(cfg *config.StreamConfig, logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(cfg.EventBufferSize),
		cfg:     cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Subscribe handles an SSE client subscription with Last-Event-ID resume
// support. It blocks until the client disconnects or the hub stops.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	clientCtx, cancel := context.WithCancel(ctx)

	clientID := fmt.Sprintf("client_%d", time.Now().UnixNano())

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:      clientID,
		Writer:  w,
		Request: r,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Events:  make(chan Event, 100),
	}

	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()

	h.logf("stream: client connected: %s (remote=%s, lastEventId=%d)", clientID, r.RemoteAddr, lastEventID)

	if err := h.sendReadyEvent(client); err != nil {
		h.unregisterClient(clientID)
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	// Replay buffered events if Last-Event-ID provided
	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			h.unregisterClient(clientID)
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	// Start heartbeat when clients are connected and none is running yet.
	// Checked against >= 1 so concurrent first connects cannot both skip it.
	h.mu.Lock()
	if len(h.clients) >= 1 && h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	// Blocks until the client disconnects
	h.handleClient(client)

	return nil
}

// Publish delivers an event to every connected client. Events other than
// heartbeats are also buffered for Last-Event-ID replay.
func (h *Hub) Publish(event Event) error {
	if event.ID == 0 {
		event.ID = atomic.AddInt64(&h.nextID, 1)
	}

	if event.Type != EventHeartbeat {
		h.buffer.Add(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	// Fan out without holding the lock
	for _, client := range clients {
		select {
		case <-client.Context.Done():
			continue
		case <-h.done:
			return nil
		case client.Events <- event:
		case <-time.After(100 * time.Millisecond):
			// Drop event if client is slow to prevent blocking
		}
	}

	return nil
}

// PublishDelta publishes a grouped telemetry delta as a "new-data" event.
// With zero subscribers the event lands only in the replay buffer.
func (h *Hub) PublishDelta(delta map[string][]Point) error {
	if len(delta) == 0 {
		return nil
	}
	return h.Publish(Event{
		Type: EventNewData,
		Data: delta,
	})
}

// SubscriberCount returns the number of currently connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendReadyEvent sends the initial ready event to a client.
func (h *Hub) sendReadyEvent(client *Client) error {
	readyEvent := Event{
		ID:   atomic.AddInt64(&h.nextID, 1),
		Type: EventReady,
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	}

	return h.sendEventToClient(client, readyEvent)
}

// replayEvents replays buffered events for a client based on Last-Event-ID.
func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	for _, event := range h.buffer.EventsAfter(lastEventID) {
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
	}
	return nil
}

// sendEventToClient writes a single event to a client in SSE wire format.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", string(data)); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}

// handleClient drains a client's event channel until it disconnects.
func (h *Hub) handleClient(client *Client) {
	defer func() {
		h.unregisterClient(client.ID)
		h.logf("stream: client disconnected: %s", client.ID)
	}()

	for {
		select {
		case <-client.Context.Done():
			return
		default:
		}

		timeout := time.NewTimer(100 * time.Millisecond)
		select {
		case <-client.Context.Done():
			timeout.Stop()
			return
		case <-timeout.C:
			// Loop continues, rechecks context
			continue
		case event := <-client.Events:
			timeout.Stop()
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

// unregisterClient removes a client from the hub.
func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		client.Cancel()
		delete(h.clients, clientID)

		if len(h.clients) == 0 && h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
			if h.stopHeartbeat != nil {
				close(h.stopHeartbeat)
				h.stopHeartbeat = nil
			}
		}
	}
}

// startHeartbeat starts the heartbeat ticker.
// Caller must hold h.mu and verify h.heartbeatTicker == nil.
func (h *Hub) startHeartbeat() {
	interval := h.cfg.HeartbeatInterval()
	jitter := h.cfg.HeartbeatJitter()

	// Jitter spreads reconnect storms across the fleet
	actualInterval := interval + time.Duration(float64(jitter)*0.5)

	h.heartbeatTicker = time.NewTicker(actualInterval)
	h.stopHeartbeat = make(chan struct{})

	ticker := h.heartbeatTicker
	stopChan := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			if h.heartbeatTicker != nil {
				h.heartbeatTicker.Stop()
			}
			h.mu.Unlock()
		}()

		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stopChan:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// sendHeartbeat sends a heartbeat event to all clients.
func (h *Hub) sendHeartbeat() {
	h.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Stop stops the hub and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	for _, client := range h.clients {
		client.Cancel()
	}
	if h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
	}
	if h.stopHeartbeat != nil {
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		// Force cleanup after timeout
	}

	h.mu.Lock()
	for _, client := range h.clients {
		client.Cancel()
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
}

func (h *Hub) logf(format string, args ...interface{}) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

// NewEventBuffer creates an event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// Add appends an event, evicting the oldest when at capacity.
func (b *EventBuffer) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// EventsAfter returns buffered events with an ID greater than lastID.
func (b *EventBuffer) EventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// Size returns the current number of buffered events.
func (b *EventBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
