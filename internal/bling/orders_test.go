package bling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCodeDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int
	}{
		{"bare number", `15`, intp(15)},
		{"numeric string", `"15"`, intp(15)},
		{"object with numeric id", `{"id":15}`, intp(15)},
		{"object with string id", `{"id":"15"}`, intp(15)},
		{"null", `null`, nil},
		{"non-numeric string", `"aberto"`, nil},
		{"object without id", `{"nome":"Em aberto"}`, nil},
		{"unexpected shape", `true`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s statusCode
			err := json.Unmarshal([]byte(tt.raw), &s)
			require.NoError(t, err)
			if tt.want == nil {
				require.Nil(t, s.id)
			} else {
				require.NotNil(t, s.id)
				require.Equal(t, *tt.want, *s.id)
			}
		})
	}
}

func intp(v int) *int { return &v }
