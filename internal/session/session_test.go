package session

import (
	"encoding/json"
	"testing"
	"time"
)

func recvOne(t *testing.T, q <-chan json.RawMessage) json.RawMessage {
	t.Helper()
	select {
	case m, ok := <-q:
		if !ok {
			t.Fatal("queue closed unexpectedly")
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
	return nil
}

func TestEnsureMintsAndReuses(t *testing.T) {
	r := NewRegistry(time.Minute, 4)
	s1 := r.Ensure("")
	if s1.ID == "" {
		t.Fatal("empty session id")
	}
	if s2 := r.Ensure(s1.ID); s2 != s1 {
		t.Fatal("same id should return the same session")
	}
	if r.Len() != 1 {
		t.Fatalf("len: %d", r.Len())
	}
	r.Ensure("other")
	if r.Len() != 2 {
		t.Fatalf("len: %d", r.Len())
	}
}

func TestClientInfoRecorded(t *testing.T) {
	r := NewRegistry(time.Minute, 4)
	s := r.Ensure("a")
	if s.ClientInfo() != nil {
		t.Fatal("fresh session should carry no client info")
	}
	s.SetClientInfo(json.RawMessage(`{"name":"inspector"}`))
	if got := string(s.ClientInfo()); got != `{"name":"inspector"}` {
		t.Fatalf("client info: %s", got)
	}
}

func TestDeliverWithoutQueue(t *testing.T) {
	r := NewRegistry(time.Minute, 4)
	s := r.Ensure("a")
	if s.Deliver(json.RawMessage(`{}`)) {
		t.Fatal("delivery without a queue should fall back inline")
	}
}

func TestQueueBuffersUntilAttach(t *testing.T) {
	r := NewRegistry(time.Minute, 4)
	s := r.Ensure("a")
	s.EnsureQueue()
	if !s.Deliver(json.RawMessage(`1`)) || !s.Deliver(json.RawMessage(`2`)) {
		t.Fatal("buffered delivery refused")
	}
	q := s.Attach()
	if got := string(recvOne(t, q)); got != `1` {
		t.Fatalf("first message: %s", got)
	}
	if got := string(recvOne(t, q)); got != `2` {
		t.Fatalf("second message: %s", got)
	}
}

func TestSecondStreamReplacesFirst(t *testing.T) {
	r := NewRegistry(time.Minute, 4)
	s := r.Ensure("a")
	q1 := s.Attach()
	q2 := s.Attach()

	select {
	case _, ok := <-q1:
		if ok {
			t.Fatal("stale queue should be empty and closed")
		}
	case <-time.After(time.Second):
		t.Fatal("replaced queue was not closed")
	}

	if !s.Deliver(json.RawMessage(`"x"`)) {
		t.Fatal("delivery refused")
	}
	if got := string(recvOne(t, q2)); got != `"x"` {
		t.Fatalf("new stream received %s", got)
	}
	select {
	case m := <-q2:
		t.Fatalf("duplicate delivery: %s", m)
	default:
	}
}

func TestFullQueueRejects(t *testing.T) {
	r := NewRegistry(time.Minute, 1)
	s := r.Ensure("a")
	s.EnsureQueue()
	if !s.Deliver(json.RawMessage(`1`)) {
		t.Fatal("first delivery refused")
	}
	if s.Deliver(json.RawMessage(`2`)) {
		t.Fatal("full queue should reject so the caller responds inline")
	}
}

func TestDetachIgnoresStaleStream(t *testing.T) {
	r := NewRegistry(time.Minute, 4)
	s := r.Ensure("a")
	q1 := s.Attach()
	q2 := s.Attach()

	s.Detach(q1)
	if !s.HasQueue() {
		t.Fatal("stale detach removed the live queue")
	}
	if !s.Deliver(json.RawMessage(`1`)) {
		t.Fatal("delivery refused after stale detach")
	}
	if got := string(recvOne(t, q2)); got != `1` {
		t.Fatalf("got %s", got)
	}

	s.Detach(q2)
	if s.HasQueue() {
		t.Fatal("detach of the live stream should remove the queue")
	}
	if s.Deliver(json.RawMessage(`2`)) {
		t.Fatal("delivery should fall back inline once the stream is gone")
	}
}

func TestPruneExpiredClosesQueues(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, 4)
	stale := r.Ensure("stale")
	q := stale.Attach()
	time.Sleep(80 * time.Millisecond)
	fresh := r.Ensure("fresh")
	_ = fresh

	r.PruneExpired(time.Now())
	if r.Len() != 1 {
		t.Fatalf("len after prune: %d", r.Len())
	}
	select {
	case _, ok := <-q:
		if ok {
			t.Fatal("pruned queue should be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("pruned session queue left open")
	}
	if r.Ensure("fresh") != fresh {
		t.Fatal("fresh session should survive the prune")
	}
}
