package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{"quiet hides debug", false, false},
		{"verbose shows debug", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(&buf, tt.verbose)

			log.Debug().Msg("debug line")
			log.Info().Str("project", "demo").Msg("info line")

			assert.Contains(t, buf.String(), "info line")
			assert.Contains(t, buf.String(), "demo")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
		})
	}
}

func TestZeroLoggerIsSilent(t *testing.T) {
	var log zerolog.Logger
	assert.NotPanics(t, func() { log.Info().Msg("dropped") })
}
