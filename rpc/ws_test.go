package rpc

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"vaultchain/core/events"
	"vaultchain/native/access"

	"nhooyr.io/websocket"
)

func grantEvent(b byte) events.AccessRoleGranted {
	return events.AccessRoleGranted{Role: access.RoleLiquidator, Grantee: testAddr(b), Caller: adminAddr}
}

func TestHubSequencesAndReplaysHistory(t *testing.T) {
	hub := NewHub()
	for i := byte(1); i <= 3; i++ {
		hub.Emit(grantEvent(i))
	}

	_, cancel, backlog := hub.Subscribe(context.Background(), "")
	defer cancel()

	if len(backlog) != 3 {
		t.Fatalf("expected 3 backlog entries, got %d", len(backlog))
	}
	for i, entry := range backlog {
		if entry.Seq != uint64(i+1) {
			t.Fatalf("entry %d has seq %d", i, entry.Seq)
		}
		if entry.Type != events.TypeAccessRoleGranted {
			t.Fatalf("entry %d has type %q", i, entry.Type)
		}
		if entry.Payload["role"] != access.RoleLiquidator {
			t.Fatalf("entry %d payload missing role: %v", i, entry.Payload)
		}
	}
}

func TestHubCursorSkipsDeliveredEvents(t *testing.T) {
	hub := NewHub()
	for i := byte(1); i <= 5; i++ {
		hub.Emit(grantEvent(i))
	}

	_, cancel, backlog := hub.Subscribe(context.Background(), "3")
	defer cancel()

	if len(backlog) != 2 {
		t.Fatalf("expected 2 backlog entries after cursor, got %d", len(backlog))
	}
	if backlog[0].Seq != 4 || backlog[1].Seq != 5 {
		t.Fatalf("unexpected backlog seqs %d/%d", backlog[0].Seq, backlog[1].Seq)
	}
}

func TestHubUnparseableCursorReplaysEverything(t *testing.T) {
	hub := NewHub()
	hub.Emit(grantEvent(1))
	hub.Emit(grantEvent(2))

	_, cancel, backlog := hub.Subscribe(context.Background(), "not-a-cursor")
	defer cancel()

	if len(backlog) != 2 {
		t.Fatalf("expected full replay, got %d entries", len(backlog))
	}
}

func TestHubDeliversLiveEvents(t *testing.T) {
	hub := NewHub()
	updates, cancel, backlog := hub.Subscribe(context.Background(), "")
	defer cancel()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(backlog))
	}

	hub.Emit(grantEvent(9))

	select {
	case entry := <-updates:
		if entry.Seq != 1 || entry.Type != events.TypeAccessRoleGranted {
			t.Fatalf("unexpected entry %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatalf("no live event within deadline")
	}
}

func TestHubDropsEventsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	updates, cancel, _ := hub.Subscribe(context.Background(), "")
	defer cancel()

	total := subscriberBuffer + 5
	for i := 0; i < total; i++ {
		hub.Emit(grantEvent(byte(i%200 + 1)))
	}

	received := 0
	var lastSeq uint64
drain:
	for {
		select {
		case entry := <-updates:
			received++
			lastSeq = entry.Seq
		default:
			break drain
		}
	}
	if received != subscriberBuffer {
		t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, received)
	}
	if lastSeq != uint64(subscriberBuffer) {
		t.Fatalf("expected last buffered seq %d, got %d", subscriberBuffer, lastSeq)
	}

	// The replay history covers the dropped tail on reconnect.
	_, cancelRetry, backlog := hub.Subscribe(context.Background(), strconv.FormatUint(lastSeq, 10))
	defer cancelRetry()
	if len(backlog) != total-subscriberBuffer {
		t.Fatalf("expected %d replayed events, got %d", total-subscriberBuffer, len(backlog))
	}
	if backlog[0].Seq != uint64(subscriberBuffer+1) {
		t.Fatalf("replay starts at seq %d", backlog[0].Seq)
	}
}

func TestHubTrimsHistory(t *testing.T) {
	hub := NewHub()
	total := eventHistoryLimit + 10
	for i := 0; i < total; i++ {
		hub.Emit(grantEvent(byte(i%200 + 1)))
	}

	_, cancel, backlog := hub.Subscribe(context.Background(), "")
	defer cancel()

	if len(backlog) != eventHistoryLimit {
		t.Fatalf("expected trimmed history of %d, got %d", eventHistoryLimit, len(backlog))
	}
	if backlog[0].Seq != 11 {
		t.Fatalf("expected oldest retained seq 11, got %d", backlog[0].Seq)
	}
	if backlog[len(backlog)-1].Seq != uint64(total) {
		t.Fatalf("expected newest seq %d, got %d", total, backlog[len(backlog)-1].Seq)
	}
}

func TestHubCancelClosesSubscription(t *testing.T) {
	hub := NewHub()
	updates, cancel, _ := hub.Subscribe(context.Background(), "")

	cancel()
	cancel() // second cancel is a no-op

	if _, ok := <-updates; ok {
		t.Fatalf("expected closed channel after cancel")
	}

	// Emitting after cancel must not panic on the removed subscriber.
	hub.Emit(grantEvent(1))
}

func TestHubContextCancelUnsubscribes(t *testing.T) {
	hub := NewHub()
	ctx, stop := context.WithCancel(context.Background())
	updates, cancel, _ := hub.Subscribe(ctx, "")
	defer cancel()

	stop()

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("subscription still open after context cancel")
		}
	}
}

func TestEventsWebSocketStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	ctx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?cursor=0"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial event stream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	env.server.Hub().Emit(grantEvent(5))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read stream frame: %v", err)
	}
	var entry StreamEvent
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode stream frame: %v", err)
	}
	if entry.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", entry.Seq)
	}
	if entry.Type != events.TypeAccessRoleGranted {
		t.Fatalf("unexpected event type %q", entry.Type)
	}
	if entry.Payload["grantee"] != testAddr(5).String() {
		t.Fatalf("unexpected payload %v", entry.Payload)
	}
}
