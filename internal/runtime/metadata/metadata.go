package metadata

// Headers is the free-form string mapping carried alongside an envelope.
type Headers map[string]string

func (h Headers) cloneWithExtra(extra int) Headers {
	size := len(h) + extra
	if size <= 0 {
		return Headers{}
	}

	cloned := make(Headers, size)
	for k, v := range h {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the headers.
func (h Headers) Clone() Headers {
	return h.cloneWithExtra(0)
}

// With returns a cloned map containing the provided key/value pair.
func (h Headers) With(key, value string) Headers {
	cloned := h.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned map containing the supplied entries.
func (h Headers) WithAll(entries Headers) Headers {
	cloned := h.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// IsEmpty reports whether no header is set. A nil map is empty.
func (h Headers) IsEmpty() bool {
	return len(h) == 0
}

// OrNil returns nil for empty headers so optional wire fields stay absent.
func (h Headers) OrNil() Headers {
	if len(h) == 0 {
		return nil
	}
	return h.Clone()
}

// New constructs Headers from alternating key/value pairs.
func New(pairs ...string) Headers {
	h := make(Headers, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		h[pairs[i]] = pairs[i+1]
	}
	return h
}
