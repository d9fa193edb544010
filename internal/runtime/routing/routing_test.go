package routing

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Vendor\Package\FakeMessage`, "vendor.package.fake_message"},
		{`A\B\CamelCase`, "a.b.camel_case"},
		{`Softonic\LaravelProtobufEvents\FakeProto\FakeMessage`, "softonic.laravel_protobuf_events.fake_proto.fake_message"},
		{"pkg.FakeMessage", "pkg.fake_message"},
		{"orders/v1/OrderCreated", "orders.v1.order_created"},
		{"Simple", "simple"},
		{"already.lower", "already.lower"},
		{"HTTPRequest", "h_t_t_p_request"},
		{"x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Derive(tt.in); got != tt.want {
				t.Fatalf("Derive(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveIsDeterministicAndIdempotent(t *testing.T) {
	const name = `Vendor\Package\FakeMessage`
	first := Derive(name)
	for i := 0; i < 10; i++ {
		if got := Derive(name); got != first {
			t.Fatalf("Derive is not deterministic: %q != %q", got, first)
		}
	}
	if again := Derive(first); again != first {
		t.Fatalf("expected derived key to be a fixed point, got %q from %q", again, first)
	}
}

func TestDeriveDistinctNames(t *testing.T) {
	a := Derive(`Vendor\Package\FakeMessage`)
	b := Derive(`Vendor\Package\OtherMessage`)
	if a == b {
		t.Fatalf("expected distinct type names to map to distinct keys, both got %q", a)
	}
}

func TestDeriveScoped(t *testing.T) {
	if got := DeriveScoped("checkout", `Vendor\Package\FakeMessage`); got != "checkout.vendor.package.fake_message" {
		t.Fatalf("unexpected scoped key %q", got)
	}
	if got := DeriveScoped("", "pkg.FakeMessage"); got != "pkg.fake_message" {
		t.Fatalf("expected empty scope to be omitted, got %q", got)
	}
}

func TestForMessage(t *testing.T) {
	if got := ForMessage("svc", wrapperspb.String("x")); got != "svc.google.protobuf.string_value" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := TypeName(&structpb.Struct{}); got != "google.protobuf.Struct" {
		t.Fatalf("unexpected type name %q", got)
	}
}
