package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const keepaliveInterval = 15 * time.Second

// Encoder writes Bus events to an http.ResponseWriter as
// "event: <type>\ndata: <json>\n\n" frames, interleaving a keepalive comment
// every 15s of silence so idle connections aren't reaped by intermediate
// proxies.
type Encoder struct {
	w  http.ResponseWriter
	fl http.Flusher
	mu sync.Mutex
}

// NewEncoder prepares w for SSE and returns an Encoder. Panics if w does not
// support http.Flusher, matching the teacher's fail-fast streaming writers.
func NewEncoder(w http.ResponseWriter) *Encoder {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fl, ok := w.(http.Flusher)
	if !ok {
		panic("events: streaming not supported by the underlying http.ResponseWriter")
	}
	return &Encoder{w: w, fl: fl}
}

// Write emits one event frame and flushes. The frame body is the full
// envelope (type, run_id, trace_id, ts_ms, data), not just the payload.
func (e *Encoder) Write(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
		return fmt.Errorf("events: write frame: %w", err)
	}
	e.fl.Flush()
	return nil
}

func (e *Encoder) writeKeepalive() {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprint(e.w, ": keepalive\n\n")
	e.fl.Flush()
}

// Pump drains bus onto the encoder until bus is closed or stop fires. It
// interleaves a keepalive comment whenever no event has been written for
// keepaliveInterval. Pump runs in the calling goroutine and returns once the
// bus is drained and closed.
func (e *Encoder) Pump(bus *Bus, stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, ok := bus.Next()
			if !ok {
				return
			}
			_ = e.Write(ev)
		}
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-stop:
			bus.Close()
			<-done
			return
		case <-ticker.C:
			e.writeKeepalive()
		}
	}
}
