package handlers

import (
	metadatapkg "github.com/drblury/protoevents/internal/runtime/metadata"
)

// ClientReceiver is implemented by handlers that need the identifier of the
// client that published the event. The dispatcher refuses deliveries without one.
type ClientReceiver interface {
	SetClient(client string)
}

// HeadersReceiver is implemented by handlers that want the envelope headers.
// It is only called when the envelope carries at least one header.
type HeadersReceiver interface {
	SetHeaders(headers metadatapkg.Headers)
}

type plainHeadersReceiver interface {
	SetHeaders(headers map[string]string)
}

// AsClientReceiver returns the target's ClientReceiver capability, if any.
func AsClientReceiver(target any) (ClientReceiver, bool) {
	receiver, ok := target.(ClientReceiver)
	return receiver, ok
}

// AsHeadersReceiver returns the target's HeadersReceiver capability, if any.
// Handlers declaring SetHeaders(map[string]string) are accepted as well.
func AsHeadersReceiver(target any) (HeadersReceiver, bool) {
	switch receiver := target.(type) {
	case HeadersReceiver:
		return receiver, true
	case plainHeadersReceiver:
		return plainHeadersAdapter{receiver}, true
	default:
		return nil, false
	}
}

type plainHeadersAdapter struct {
	target plainHeadersReceiver
}

func (a plainHeadersAdapter) SetHeaders(headers metadatapkg.Headers) {
	a.target.SetHeaders(map[string]string(headers))
}
