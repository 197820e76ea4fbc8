package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestNewErrorOmitsAbsentID(t *testing.T) {
	env := NewError(nil, CodeInternalError, "Invalid Origin header", nil)
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["id"]; ok {
		t.Fatalf("id should be omitted: %s", b)
	}
	if _, ok := m["result"]; ok {
		t.Fatalf("error envelope must not carry result: %s", b)
	}
	var e Error
	if err := json.Unmarshal(m["error"], &e); err != nil {
		t.Fatalf("unmarshal error member: %v", err)
	}
	if e.Code != CodeInternalError || e.Message != "Invalid Origin header" {
		t.Fatalf("unexpected error member: %+v", e)
	}
}

func TestNewResponseEchoesID(t *testing.T) {
	env, err := NewResponse(json.RawMessage(`42`), map[string]string{"ok": "yes"})
	if err != nil {
		t.Fatalf("new response: %v", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(decoded.ID) != "42" {
		t.Fatalf("id = %s, want 42", decoded.ID)
	}
	if decoded.Error != nil {
		t.Fatalf("unexpected error member: %+v", decoded.Error)
	}
}

func TestIsNotification(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`{"jsonrpc":"2.0","method":"notifications/initialized"}`, true},
		{`{"jsonrpc":"2.0","id":null,"method":"ping"}`, true},
		{`{"jsonrpc":"2.0","id":1,"method":"ping"}`, false},
		{`{"jsonrpc":"2.0","id":"a","method":"ping"}`, false},
	}
	for _, c := range cases {
		var env Envelope
		if err := json.Unmarshal([]byte(c.raw), &env); err != nil {
			t.Fatalf("unmarshal %s: %v", c.raw, err)
		}
		if got := env.IsNotification(); got != c.want {
			t.Fatalf("IsNotification(%s) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestStringID(t *testing.T) {
	if got := string(StringID("17")); got != `"17"` {
		t.Fatalf("StringID = %s", got)
	}
}
