package stream

import (
	"fmt"
	"net/http"
	"time"
)

// ServeSSE streams thoughts to one observer over Server-Sent Events. It
// sends a connection acknowledgement, replays recent history, then relays
// new thoughts as they are emitted, interleaving keepalive comments when the
// stream is idle. The subscription is torn down when the client disconnects.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub, replay := b.subscribe()
	defer b.unsubscribe(sub)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"message\":\"Agent stream connected\"}\n\n")
	for _, data := range replay {
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	flusher.Flush()

	keepalive := time.NewTicker(b.cfg.KeepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case data := <-sub.ch:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			keepalive.Reset(b.cfg.KeepaliveEvery)

		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
