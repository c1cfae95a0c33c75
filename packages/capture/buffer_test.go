package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer(t *testing.T) {
	tests := []struct {
		name      string
		maxBytes  int
		writes    []string
		want      string
		truncated bool
	}{
		{name: "unbounded", maxBytes: 0, writes: []string{"ab", "cd"}, want: "abcd"},
		{name: "within limit", maxBytes: 8, writes: []string{"ab", "cd"}, want: "abcd"},
		{name: "keeps tail", maxBytes: 3, writes: []string{"ab", "cd"}, want: "bcd", truncated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.maxBytes)
			for _, w := range tt.writes {
				_, _ = b.WriteString(w)
			}
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, len(tt.want), b.Len())
			assert.Equal(t, int64(4), b.TotalBytes())
			assert.Equal(t, tt.truncated, b.Truncated())
		})
	}
}
