package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

func TestStdoutEnvelopes(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ctx := context.Background()
	s.Send(ctx, event.Dispatch{EventID: "a_1_1"})
	s.SendCompletion(ctx, event.Completion{SnapshotID: 1, Channel: event.ChannelScreenshot, Success: true})
	s.SendRecord(ctx, event.Record{EventID: "a_1_1", Status: event.StatusReady})

	var types []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		types = append(types, env.Type)
	}
	want := []string{TypeDispatch, TypeCompletion, TypeRecord}
	if len(types) != len(want) {
		t.Fatalf("types: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("line %d: type %q, want %q", i, types[i], want[i])
		}
	}
}

type failing struct{ calls atomic.Int32 }

func (f *failing) Send(context.Context, event.Dispatch) error {
	f.calls.Add(1)
	return errors.New("down")
}
func (f *failing) SendCompletion(context.Context, event.Completion) error { return errors.New("down") }
func (f *failing) SendRecord(context.Context, event.Record) error         { return errors.New("down") }
func (f *failing) Close() error                                           { return errors.New("close") }

func TestRouterFanOutContinuesOnError(t *testing.T) {
	var got []string
	cb := NewCallback(func(_ context.Context, d event.Dispatch) error {
		got = append(got, d.EventID)
		return nil
	}, nil, nil)
	bad := &failing{}
	r := NewRouter(nil, bad, cb)

	err := r.Send(context.Background(), event.Dispatch{EventID: "x"})
	if err == nil || err.Error() != "down" {
		t.Fatalf("first error not returned: %v", err)
	}
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("callback sink not reached: %v", got)
	}
	if r.SendCompletion(context.Background(), event.Completion{}) == nil {
		t.Fatal("completion error swallowed")
	}
	if r.Close() == nil {
		t.Fatal("close error swallowed")
	}
}

func TestRouterDeliverAcceptsIfAnySinkDid(t *testing.T) {
	ctx := context.Background()
	ok := NewCallback(nil, nil, nil)

	if !NewRouter(nil, &failing{}, ok).Deliver(ctx, event.Dispatch{EventID: "x"}) {
		t.Error("one healthy sink should accept the dispatch")
	}
	if NewRouter(nil, &failing{}, &failing{}).Deliver(ctx, event.Dispatch{EventID: "x"}) {
		t.Error("all sinks failed, dispatch should not be accepted")
	}
	if !NewRouter(nil).Deliver(ctx, event.Dispatch{EventID: "x"}) {
		t.Error("router without sinks should accept")
	}
}

func TestCallbackNilFuncs(t *testing.T) {
	c := NewCallback(nil, nil, nil)
	ctx := context.Background()
	if c.Send(ctx, event.Dispatch{}) != nil || c.SendCompletion(ctx, event.Completion{}) != nil || c.SendRecord(ctx, event.Record{}) != nil {
		t.Fatal("nil callbacks must be no-ops")
	}
}

func TestWebhookDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var types []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env envelope
		json.Unmarshal(body, &env)
		mu.Lock()
		types = append(types, env.Type)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	ctx := context.Background()
	if err := w.Send(ctx, event.Dispatch{EventID: "e"}); err != nil {
		t.Fatal(err)
	}
	if err := w.SendRecord(ctx, event.Record{EventID: "e"}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(types) != 2 || types[0] != TypeDispatch || types[1] != TypeRecord {
		t.Fatalf("delivered: %v", types)
	}
}

func TestWebhookRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	w.SendCompletion(context.Background(), event.Completion{SnapshotID: 1})
	w.Close()

	if got := hits.Load(); got != 3 {
		t.Fatalf("attempts: got %d, want 3", got)
	}
}

func TestWebhookQueueFull(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookQueue(1), WithWebhookRetries(0))
	ctx := context.Background()
	var full bool
	for i := 0; i < 10; i++ {
		if errors.Is(w.Send(ctx, event.Dispatch{}), ErrQueueFull) {
			full = true
			break
		}
	}
	close(block)
	w.Close()
	if !full {
		t.Fatal("queue never reported full")
	}
	if err := w.Send(ctx, event.Dispatch{}); err == nil {
		t.Fatal("send after close must fail")
	}
}
