package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/scripttrimmer/api/internal/model"
	"github.com/scripttrimmer/api/internal/progress"
)

const heartbeatInterval = 15 * time.Second

// Publisher streams progress updates for a single job key as server-sent
// events. The stream is read-only for the client; closing it never affects
// the running job.
type Publisher struct {
	store progress.Store
}

func NewPublisher(store progress.Store) *Publisher {
	return &Publisher{store: store}
}

// Stream writes the connection handshake followed by every update published
// for key, and returns when a terminal update has been sent, the job is
// already finished, the client goes away, or ctx is cancelled.
func (p *Publisher) Stream(ctx context.Context, key, jobReference string, w *bufio.Writer) {
	sub, err := p.store.Subscribe(ctx, key)
	if err != nil {
		log.Printf("Warning: subscribe failed for %s: %v", key, err)
		return
	}
	defer sub.Close()

	handshake := model.ConnectionEvent{
		Type:         model.StreamEventConnection,
		Message:      "Connected to progress stream",
		JobReference: jobReference,
	}
	if err := writeEvent(w, handshake); err != nil {
		return
	}

	// A job that finished before this subscriber arrived gets the terminal
	// update once and then the stream closes. Non-terminal history is not
	// replayed.
	latest, err := p.store.Latest(ctx, key)
	if err != nil {
		log.Printf("Warning: latest lookup failed for %s: %v", key, err)
	}
	if latest != nil && latest.Status.IsTerminal() {
		writeEvent(w, latest)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Comment frames keep intermediaries from timing out the
			// connection and surface dead clients as write errors.
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case update, ok := <-sub.Updates():
			if !ok {
				return
			}
			if err := writeEvent(w, update); err != nil {
				return
			}
			if update.Status.IsTerminal() {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
