package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageAcceptsKnownTypes(t *testing.T) {
	for _, typ := range []MessageType{MessageReady, MessageError, MessageReload, MessageShutdown} {
		m, ok := ParseMessage([]byte(`{"type":"` + string(typ) + `"}`))
		require.True(t, ok, "type %s", typ)
		assert.Equal(t, typ, m.Type)
	}
}

func TestParseMessageCarriesError(t *testing.T) {
	m, ok := ParseMessage([]byte(`{"type":"error","error":"bind failed"}`))
	require.True(t, ok)
	assert.Equal(t, MessageError, m.Type)
	assert.Equal(t, "bind failed", m.Error)
}

func TestParseMessageRejectsOrdinaryOutput(t *testing.T) {
	for _, line := range []string{
		"plain log line",
		"",
		"   ",
		`{"type":"unknown"}`,
		`{"status":"ok"}`,
		`{broken json`,
		`[1,2,3]`,
	} {
		_, ok := ParseMessage([]byte(line))
		assert.False(t, ok, "line %q must not parse as control frame", line)
	}
}

func TestParseMessageTrimsWhitespace(t *testing.T) {
	m, ok := ParseMessage([]byte("  \t" + `{"type":"ready"}` + "\r"))
	require.True(t, ok)
	assert.Equal(t, MessageReady, m.Type)
}

func TestEncodeRoundTrip(t *testing.T) {
	b, err := Message{Type: MessageShutdown}.Encode()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), b[len(b)-1], "frames are newline terminated")

	m, ok := ParseMessage(b)
	require.True(t, ok)
	assert.Equal(t, MessageShutdown, m.Type)
}
