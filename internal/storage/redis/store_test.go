package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "kart:orders:", want: "kart:orders:"},
		{in: "kart:cart:a*b", want: `kart:cart:a\*b`},
		{in: "x?[y]", want: `x\?\[y\]`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeGlob(tt.in))
		})
	}
}

func TestStore_KeyNamespacing(t *testing.T) {
	s := New(nil, "kart")
	assert.Equal(t, "kart:cart:guest", s.key("cart:guest"))

	bare := New(nil, "")
	assert.Equal(t, "cart:guest", bare.key("cart:guest"))
}
