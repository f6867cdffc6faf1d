package hub

import (
	"encoding/json"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New()
	defer h.Close()

	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(EventTicketCreated, map[string]int{"number": 1})

	for _, client := range []*Client{a, b} {
		select {
		case frame := <-client.Send:
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			if env.Type != EventTicketCreated {
				t.Fatalf("unexpected event type %q", env.Type)
			}
			var payload map[string]int
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if payload["number"] != 1 {
				t.Fatalf("unexpected payload %v", payload)
			}
		default:
			t.Fatalf("client %s received nothing", client.ID)
		}
	}
}

func TestSlowSubscriberIsPruned(t *testing.T) {
	h := New()
	defer h.Close()

	slow := h.Subscribe()
	healthy := h.Subscribe()

	// Back up the slow client's buffer so the next publish overflows it.
	for i := 0; i < sendBuffer; i++ {
		slow.Send <- []byte("backlog")
	}

	h.Publish(EventTicketCalled, map[string]int{"seq": 1})

	// The overflowing publish closed the slow client's channel.
	drained := 0
	for range slow.Send {
		drained++
	}
	if drained != sendBuffer {
		t.Fatalf("expected %d buffered frames before prune, got %d", sendBuffer, drained)
	}

	// The healthy client is untouched and still subscribed.
	h.Publish(EventQueueReset, struct{}{})
	got := 0
	for len(healthy.Send) > 0 {
		<-healthy.Send
		got++
	}
	if got != 2 {
		t.Fatalf("healthy client got %d frames, want 2", got)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New()
	defer h.Close()

	client := h.Subscribe()
	h.Unsubscribe(client)
	h.Unsubscribe(client)

	// Publishing after unsubscribe must not panic on the closed channel.
	h.Publish(EventTicketCompleted, struct{}{})
}

func TestCloseDisconnectsClients(t *testing.T) {
	h := New()
	client := h.Subscribe()
	h.Close()

	if _, open := <-client.Send; open {
		t.Fatalf("expected closed send channel")
	}

	h.Publish(EventQueueReset, struct{}{})
	late := h.Subscribe()
	if _, open := <-late.Send; open {
		t.Fatalf("subscribe after close must hand back a closed client")
	}
}
