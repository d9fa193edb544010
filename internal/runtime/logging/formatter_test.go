package logging

import (
	"errors"
	"testing"
	"time"

	envelopepkg "github.com/drblury/protoevents/internal/runtime/envelope"
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
)

func TestDefaultFormatterOutgoing(t *testing.T) {
	env := envelopepkg.Envelope{
		Client:  "checkout",
		Data:    []byte(`{"content":"x"}`),
		Headers: metadatapkg.Headers{"xRequestId": "abc"},
	}
	record := NewDefaultFormatter().FormatOutgoing("checkout.pkg.fake_message", env, 1500*time.Microsecond, nil)

	if record.Message != OutgoingMessage {
		t.Fatalf("unexpected message %q", record.Message)
	}
	ctx := record.Context
	if ctx["routing_key"] != "checkout.pkg.fake_message" || ctx["client"] != "checkout" {
		t.Fatalf("unexpected context %#v", ctx)
	}
	if ctx["elapsed_ms"] != 1.5 {
		t.Fatalf("expected elapsed in fractional milliseconds, got %#v", ctx["elapsed_ms"])
	}
	if ctx["payload_bytes"] != len(env.Data) {
		t.Fatalf("unexpected payload size %#v", ctx["payload_bytes"])
	}
	if headers, ok := ctx["headers"].(map[string]string); !ok || headers["xRequestId"] != "abc" {
		t.Fatalf("expected headers, got %#v", ctx["headers"])
	}
	if _, ok := ctx["data"]; ok {
		t.Fatal("payload must be left out by default")
	}
	if _, ok := ctx["error"]; ok {
		t.Fatal("no error expected on success")
	}
}

func TestDefaultFormatterIncomingFailure(t *testing.T) {
	env := envelopepkg.Envelope{Data: []byte("raw")}
	record := DefaultFormatter{IncludePayload: true}.FormatIncoming("svc.pkg.fake_message", env, 0, errors.New("handler failed"))

	if record.Message != IncomingMessage {
		t.Fatalf("unexpected message %q", record.Message)
	}
	ctx := record.Context
	if ctx["event"] != "svc.pkg.fake_message" {
		t.Fatalf("expected event name, got %#v", ctx)
	}
	if ctx["error"] != "handler failed" {
		t.Fatalf("expected error text, got %#v", ctx["error"])
	}
	if ctx["data"] != "raw" {
		t.Fatalf("expected payload, got %#v", ctx["data"])
	}
	if _, ok := ctx["headers"]; ok {
		t.Fatal("headers must be absent when the envelope has none")
	}
	if _, ok := ctx["client"]; ok {
		t.Fatal("client must be absent when the envelope has none")
	}
}

func TestDefaultFormatterBinaryPayload(t *testing.T) {
	env := envelopepkg.Envelope{Data: []byte{0x0a, 0xff, 0xfe}}

	ctx := DefaultFormatter{IncludePayload: true}.FormatOutgoing("svc.pkg.fake_message", env, 250*time.Microsecond, nil).Context
	if ctx["data"] != "Cv/+" || ctx["data_encoding"] != "base64" {
		t.Fatalf("expected base64 payload, got %#v", ctx)
	}
	if ctx["elapsed_ms"] != 0.25 {
		t.Fatalf("expected sub-millisecond elapsed, got %#v", ctx["elapsed_ms"])
	}

	ctx = NewDefaultFormatter().FormatOutgoing("svc.pkg.fake_message", env, 0, nil).Context
	if _, ok := ctx["data_encoding"]; ok {
		t.Fatalf("expected encoding marker to go with the payload, got %#v", ctx)
	}
}
