package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skyking-delivery/skytrack/internal/config"
)

// threadSafeResponseWriter captures SSE events in a thread-safe way
type threadSafeResponseWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	headers http.Header
}

func newThreadSafeResponseWriter() *threadSafeResponseWriter {
	return &threadSafeResponseWriter{
		headers: make(http.Header),
	}
}

func (w *threadSafeResponseWriter) Header() http.Header {
	return w.headers
}

func (w *threadSafeResponseWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(data)
}

func (w *threadSafeResponseWriter) WriteHeader(statusCode int) {
	// No-op for testing
}

func (w *threadSafeResponseWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func testStreamConfig() *config.StreamConfig {
	return &config.StreamConfig{
		HeartbeatIntervalSec: 15,
		HeartbeatJitterMs:    0,
		EventBufferSize:      8,
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map not initialized")
	}
	if hub.buffer == nil {
		t.Error("Hub replay buffer not initialized")
	}

	hub.Stop()
}

func TestHubPublishBuffersEvents(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)
	defer hub.Stop()

	err := hub.Publish(Event{
		Type: EventNewData,
		Data: map[string][]Point{"RPM": {{Value: 1200.0, Timestamp: "2026-08-23T10:00:00Z"}}},
	})
	if err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	if hub.buffer.Size() != 1 {
		t.Errorf("buffer size = %d, want 1", hub.buffer.Size())
	}

	// Heartbeats are transient and must not land in the replay buffer
	if err := hub.Publish(Event{Type: EventHeartbeat, Data: map[string]interface{}{}}); err != nil {
		t.Fatalf("Publish(heartbeat) failed: %v", err)
	}
	if hub.buffer.Size() != 1 {
		t.Errorf("buffer size after heartbeat = %d, want 1", hub.buffer.Size())
	}
}

func TestHubPublishDeltaEmpty(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)
	defer hub.Stop()

	if err := hub.PublishDelta(nil); err != nil {
		t.Fatalf("PublishDelta(nil) failed: %v", err)
	}
	if hub.buffer.Size() != 0 {
		t.Errorf("empty delta was buffered, buffer size = %d", hub.buffer.Size())
	}
}

func TestHubSubscribeReceivesDelta(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)
	defer hub.Stop()

	w := newThreadSafeResponseWriter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/stream", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- hub.Subscribe(ctx, w, req)
	}()

	// Wait until the client is registered
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	delta := map[string][]Point{
		"AlturaDron": {{Value: 120.5, Timestamp: "2026-08-23T10:00:00Z"}},
	}
	if err := hub.PublishDelta(delta); err != nil {
		t.Fatalf("PublishDelta() failed: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for !strings.Contains(w.String(), "event: new-data") {
		if time.Now().After(deadline) {
			t.Fatalf("new-data event never arrived, output:\n%s", w.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Subscribe() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe() did not return after disconnect")
	}

	output := w.String()
	if !strings.Contains(output, "event: ready") {
		t.Error("ready event missing from stream")
	}
	if !strings.Contains(output, "AlturaDron") {
		t.Error("delta payload missing from stream")
	}
	if got := w.Header().Get("Content-Type"); !strings.Contains(got, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after disconnect, want 0", hub.SubscriberCount())
	}
}

func TestHubReplayAfterReconnect(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)
	defer hub.Stop()

	// Publish with no subscribers: events land only in the replay buffer
	for i := 0; i < 3; i++ {
		err := hub.Publish(Event{
			Type: EventNewData,
			Data: map[string]interface{}{"seq": i},
		})
		if err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
	}

	w := newThreadSafeResponseWriter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/stream", nil)
	req.Header.Set("Last-Event-ID", "1")
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- hub.Subscribe(ctx, w, req)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(w.String(), `"seq":2`) {
		if time.Now().After(deadline) {
			t.Fatalf("replayed events never arrived, output:\n%s", w.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	output := w.String()
	if strings.Contains(output, `"seq":0`) {
		t.Error("event at or before Last-Event-ID was replayed")
	}
	if !strings.Contains(output, `"seq":1`) || !strings.Contains(output, `"seq":2`) {
		t.Errorf("events after Last-Event-ID missing, output:\n%s", output)
	}
}

// brokenPipeWriter accepts the initial ready event, then fails every write,
// mimicking a client whose connection dropped mid-stream.
type brokenPipeWriter struct {
	mu      sync.Mutex
	writes  int
	headers http.Header
}

func newBrokenPipeWriter() *brokenPipeWriter {
	return &brokenPipeWriter{headers: make(http.Header)}
}

func (w *brokenPipeWriter) Header() http.Header {
	return w.headers
}

func (w *brokenPipeWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.writes > 3 {
		return 0, errors.New("write: broken pipe")
	}
	return len(data), nil
}

func (w *brokenPipeWriter) WriteHeader(statusCode int) {}

func TestPublishDuringClientWriteFailure(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)
	defer hub.Stop()

	w := newBrokenPipeWriter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/stream", nil)

	done := make(chan error, 1)
	go func() {
		done <- hub.Subscribe(req.Context(), w, req)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Hammer the fan-out while the client's next write fails and it tears
	// down. A send racing the disconnect must drop the event, never panic.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := hub.Publish(Event{Type: EventNewData, Data: map[string]interface{}{"n": 1}}); err != nil {
					return
				}
			}
		}()
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Subscribe() failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe() did not return after write failure")
	}

	close(stop)
	wg.Wait()

	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after disconnect, want 0", hub.SubscriberCount())
	}
}

func TestHeartbeatStartsForConcurrentFirstClients(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)
	defer hub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 2; i++ {
		go func() {
			w := newThreadSafeResponseWriter()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/stream", nil)
			hub.Subscribe(ctx, w, req)
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.mu.Lock()
	running := hub.heartbeatTicker != nil
	hub.mu.Unlock()
	if !running {
		t.Error("heartbeat not running with two connected clients")
	}
}

func TestEventBuffer(t *testing.T) {
	buffer := NewEventBuffer(3)

	for i := int64(1); i <= 5; i++ {
		buffer.Add(Event{ID: i, Type: EventNewData})
	}

	if buffer.Size() != 3 {
		t.Errorf("Size() = %d, want 3 (capacity)", buffer.Size())
	}

	after := buffer.EventsAfter(3)
	if len(after) != 2 {
		t.Fatalf("EventsAfter(3) returned %d events, want 2", len(after))
	}
	if after[0].ID != 4 || after[1].ID != 5 {
		t.Errorf("EventsAfter(3) IDs = [%d %d], want [4 5]", after[0].ID, after[1].ID)
	}

	if got := buffer.EventsAfter(10); len(got) != 0 {
		t.Errorf("EventsAfter(10) returned %d events, want 0", len(got))
	}
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub := NewHub(testStreamConfig(), nil)

	w := newThreadSafeResponseWriter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/stream", nil)

	done := make(chan error, 1)
	go func() {
		done <- hub.Subscribe(req.Context(), w, req)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe() did not return after Stop()")
	}

	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after Stop(), want 0", hub.SubscriberCount())
	}
}
