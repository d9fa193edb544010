// Package routing derives broker routing keys from protobuf type names.
package routing

import (
	"strings"
	"unicode"

	"google.golang.org/protobuf/proto"
)

// Derive converts a namespaced type name into a dot-separated, snake_cased
// routing key. `\`, `/` and `.` are all treated as namespace separators, so
// both `Vendor\Package\FakeMessage` and `vendor.package.FakeMessage` map to
// `vendor.package.fake_message`.
func Derive(typeName string) string {
	var b strings.Builder
	b.Grow(len(typeName) + 8)

	segmentStart := true
	for i, r := range typeName {
		if isSeparator(r) {
			b.WriteByte('.')
			segmentStart = true
			continue
		}
		if r >= 'A' && r <= 'Z' && i > 0 && !segmentStart {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		segmentStart = false
	}

	return b.String()
}

// DeriveScoped derives the key for typeName and prefixes it with scope when set.
func DeriveScoped(scope, typeName string) string {
	key := Derive(typeName)
	if scope == "" {
		return key
	}
	return scope + "." + key
}

// TypeName returns the fully-qualified protobuf name of msg.
func TypeName(msg proto.Message) string {
	return string(msg.ProtoReflect().Descriptor().FullName())
}

// ForMessage derives the scoped routing key for msg's protobuf full name.
func ForMessage(scope string, msg proto.Message) string {
	return DeriveScoped(scope, TypeName(msg))
}

func isSeparator(r rune) bool {
	return r == '\\' || r == '/' || r == '.'
}
