package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/wasender/pkg/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := New(config.Log{Level: "info"}, &buf)

	l := Component(base, "sender")
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"sender"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.Log{Level: "warn"}, &buf)

	l.Info().Msg("dropped")
	assert.Empty(t, buf.String())
}
