package sanitize_test

import (
	"testing"

	"hvac-bridge/internal/sanitize"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Kitchen", want: "Kitchen"},
		{name: "curly quote", in: "Master’s Bedroom", want: "Master's Bedroom"},
		{name: "en dash", in: "Living–Room", want: "Living-Room"},
		{name: "em dash", in: "Living—Room", want: "Living-Room"},
		{name: "double quotes", in: "“Study”", want: `"Study"`},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitize.Name(tt.in))
		})
	}
}

func TestName_VariantsConverge(t *testing.T) {
	// two typesettings of the same logical name normalize identically
	assert.Equal(t,
		sanitize.Name("Anna’s Room – 1st floor"),
		sanitize.Name("Anna's Room - 1st floor"),
	)
}
