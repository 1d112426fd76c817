package pool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/event"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/filter"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kind"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/kinds"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/normalize"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/tags"
	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/nostr/timestamp"
	"golang.org/x/net/websocket"
)

const testPub = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"

func mkEvent(content string) *event.T {
	ev := &event.T{
		PubKey:    testPub,
		CreatedAt: timestamp.Now() - 3600,
		Kind:      kind.WorkoutRecord,
		Tags:      tags.T{},
		Content:   content,
	}
	ev.ID = ev.GetID()
	return ev
}

func newFakeRelay(handler func(conn *websocket.Conn, subid string)) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		Handshake: func(conf *websocket.Config, r *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			for {
				var raw []json.RawMessage
				if err := websocket.JSON.Receive(conn, &raw); err != nil {
					return
				}
				if len(raw) < 3 {
					continue
				}
				var typ, subid string
				json.Unmarshal(raw[0], &typ)
				if typ != "REQ" {
					continue
				}
				json.Unmarshal(raw[1], &subid)
				handler(conn, subid)
			}
		},
	})
}

func serving(evs ...*event.T) func(conn *websocket.Conn, subid string) {
	return func(conn *websocket.Conn, subid string) {
		for _, ev := range evs {
			websocket.JSON.Send(conn, []any{"EVENT", subid, ev})
		}
		websocket.JSON.Send(conn, []any{"EOSE", subid})
	}
}

func workoutFilter() *filter.T {
	return &filter.T{Kinds: kinds.T{kind.WorkoutRecord}}
}

func TestQueryDeduplicatesAcrossRelays(t *testing.T) {
	shared := mkEvent("on both")
	only1 := mkEvent("on one")
	ws1 := newFakeRelay(serving(shared, only1))
	defer ws1.Close()
	ws2 := newFakeRelay(serving(shared))
	defer ws2.Close()

	p := New(context.Bg())
	defer p.Close()
	evs, recv := p.Query(context.Bg(), []string{ws1.URL, ws2.URL},
		workoutFilter(), 500*time.Millisecond)
	if len(evs) != 2 {
		t.Fatalf("len(evs) = %d; want 2", len(evs))
	}
	if got := recv[normalize.URL(ws1.URL)]; got != 2 {
		t.Errorf("relay 1 receipts = %d; want 2", got)
	}
	if got := recv[normalize.URL(ws2.URL)]; got != 1 {
		t.Errorf("relay 2 receipts = %d; want 1", got)
	}
}

func TestQueryReturnsAtDeadlineWithSilentRelay(t *testing.T) {
	// connects fine, answers nothing, not even EOSE
	ws := newFakeRelay(func(conn *websocket.Conn, subid string) {})
	defer ws.Close()

	p := New(context.Bg())
	defer p.Close()
	started := time.Now()
	evs, _ := p.Query(context.Bg(), []string{ws.URL}, workoutFilter(),
		300*time.Millisecond)
	elapsed := time.Since(started)
	if len(evs) != 0 {
		t.Errorf("len(evs) = %d; want 0", len(evs))
	}
	if elapsed > time.Second {
		t.Errorf("query took %v; the deadline must bind", elapsed)
	}
}

func TestQueryCollectsAfterEose(t *testing.T) {
	late := mkEvent("late")
	ws := newFakeRelay(func(conn *websocket.Conn, subid string) {
		websocket.JSON.Send(conn, []any{"EOSE", subid})
		time.Sleep(100 * time.Millisecond)
		websocket.JSON.Send(conn, []any{"EVENT", subid, late})
	})
	defer ws.Close()

	p := New(context.Bg())
	defer p.Close()
	evs, _ := p.Query(context.Bg(), []string{ws.URL}, workoutFilter(),
		400*time.Millisecond)
	if len(evs) != 1 {
		t.Fatalf("len(evs) = %d; want the post-EOSE event collected", len(evs))
	}
}

func TestEnsureRelayReusesLinks(t *testing.T) {
	ws := newFakeRelay(serving())
	defer ws.Close()

	p := New(context.Bg())
	defer p.Close()
	r1, err := p.EnsureRelay(ws.URL)
	if err != nil {
		t.Fatalf("EnsureRelay: %v", err)
	}
	r2, err := p.EnsureRelay(ws.URL)
	if err != nil {
		t.Fatalf("EnsureRelay: %v", err)
	}
	if r1 != r2 {
		t.Error("same url produced two links")
	}
	if p.Relays.Size() != 1 {
		t.Errorf("pool holds %d links; want 1", p.Relays.Size())
	}
}

func TestLinkOutlivesDialTimeout(t *testing.T) {
	ev := mkEvent("still flowing")
	ws := newFakeRelay(serving(ev))
	defer ws.Close()

	p := New(context.Bg())
	defer p.Close()
	rl, err := p.EnsureRelay(ws.URL)
	if err != nil {
		t.Fatalf("EnsureRelay: %v", err)
	}
	// the dial-timeout context is cancelled once EnsureRelay returns; the
	// established link must not die with it
	time.Sleep(50 * time.Millisecond)
	if !rl.IsConnected() {
		t.Fatal("link died when the dial context was cancelled")
	}
	evs, _ := p.Query(context.Bg(), []string{ws.URL}, workoutFilter(),
		400*time.Millisecond)
	if len(evs) != 1 {
		t.Fatalf("len(evs) = %d; want 1 over the surviving link", len(evs))
	}
}

func TestUntrustedRelayEventsDropped(t *testing.T) {
	valid := mkEvent("legitimate")
	wrongKind := &event.T{
		PubKey:    testPub,
		CreatedAt: timestamp.Now() - 3600,
		Kind:      kind.TextNote,
		Tags:      tags.T{},
		Content:   "outside the subscribed filter",
	}
	wrongKind.ID = wrongKind.GetID()
	tampered := &event.T{
		PubKey:    testPub,
		CreatedAt: timestamp.Now() - 3600,
		Kind:      kind.WorkoutRecord,
		Tags:      tags.T{},
		Content:   "content the claimed id does not hash from",
	}
	tampered.ID = mkEvent("some other content").ID

	// a relay that ignores the filter and forges an id
	ws := newFakeRelay(serving(valid, wrongKind, tampered))
	defer ws.Close()

	p := New(context.Bg())
	defer p.Close()
	evs, _ := p.Query(context.Bg(), []string{ws.URL}, workoutFilter(),
		400*time.Millisecond)
	if len(evs) != 1 {
		t.Fatalf("len(evs) = %d; want only the valid event", len(evs))
	}
	if evs[0].ID != valid.ID {
		t.Errorf("surviving event = %s; want %s", evs[0].ID, valid.ID)
	}
}

func TestQueryAbsorbsDeadRelay(t *testing.T) {
	ev := mkEvent("alive")
	ws := newFakeRelay(serving(ev))
	defer ws.Close()

	p := New(context.Bg())
	defer p.Close()
	started := time.Now()
	evs, _ := p.Query(context.Bg(), []string{ws.URL, "ws://127.0.0.1:1"},
		workoutFilter(), 500*time.Millisecond)
	if len(evs) != 1 {
		t.Errorf("len(evs) = %d; want 1", len(evs))
	}
	if time.Since(started) > 2*time.Second {
		t.Error("dead relay stretched the query past its deadline")
	}
}
