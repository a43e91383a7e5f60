package frame

import "testing"

func TestParseInboundPing(t *testing.T) {
	in, err := ParseInbound([]byte("ping"))
	if err != nil || !in.Ping {
		t.Fatalf("expected ping, got %+v err=%v", in, err)
	}
}

func TestParseInboundTo(t *testing.T) {
	in, err := ParseInbound([]byte("to:client2;hello;world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Recipient != "client2" {
		t.Fatalf("recipient = %q", in.Recipient)
	}
	if in.Body != "hello;world" {
		t.Fatalf("body = %q", in.Body)
	}
}

func TestParseInboundBroadcast(t *testing.T) {
	in, err := ParseInbound([]byte("announce"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Recipient != "" || in.Body != "announce" {
		t.Fatalf("unexpected parse: %+v", in)
	}
}

func TestParseInboundMalformed(t *testing.T) {
	if _, err := ParseInbound([]byte("to:client2")); err == nil {
		t.Fatal("expected malformed error for missing ';'")
	}
}

func TestEncodeWelcome(t *testing.T) {
	got := string(EncodeWelcome(50))
	want := `welcome:{"maxPayload":50}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEncodeGet(t *testing.T) {
	if got := EncodeGet("abc"); got != "get:abc" {
		t.Fatalf("got %q", got)
	}
}
