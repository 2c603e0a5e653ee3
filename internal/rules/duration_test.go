package rules_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-format/rewarder/internal/rules"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"7d", 7 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"12h", 12 * time.Hour},
		{"30m", 30 * time.Minute},
		{"45s", 45 * time.Second},
		{"0d", 0},
		{"500", 500 * time.Millisecond},
		{"1000", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := rules.ParseDurationString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationStringErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "xd", "1w", "d", "7dd", "1.5h"} {
		t.Run(in, func(t *testing.T) {
			_, err := rules.ParseDurationString(in)
			assert.Error(t, err)
		})
	}
}
