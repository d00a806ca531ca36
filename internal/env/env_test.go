package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(t *testing.T, kvs []string, key string) (string, bool) {
	t.Helper()
	for _, kv := range kvs {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"="), true
		}
	}
	return "", false
}

func TestMergeOrder(t *testing.T) {
	o := New(map[string]string{"SHARED": "global", "ONLY_GLOBAL": "g"})
	o.base = map[string]string{"SHARED": "os", "PATH": "/bin"}

	out := o.Merge(map[string]string{"SHARED": "worker", "ONLY_WORKER": "w"})

	v, ok := lookup(t, out, "SHARED")
	require.True(t, ok)
	assert.Equal(t, "worker", v, "per-worker entry wins over global and OS")

	v, ok = lookup(t, out, "ONLY_GLOBAL")
	require.True(t, ok)
	assert.Equal(t, "g", v)

	v, ok = lookup(t, out, "PATH")
	require.True(t, ok)
	assert.Equal(t, "/bin", v, "OS base survives when not overridden")

	_, ok = lookup(t, out, "ONLY_WORKER")
	assert.True(t, ok)
}

func TestMergeExpansion(t *testing.T) {
	o := New(map[string]string{"RELAY_HOST": "127.0.0.1", "RELAY_PORT": "8791"})
	o.base = map[string]string{}

	out := o.Merge(map[string]string{"RELAY_ADDR": "${RELAY_HOST}:${RELAY_PORT}"})

	v, ok := lookup(t, out, "RELAY_ADDR")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:8791", v)
}

func TestMergeUnknownPlaceholderKept(t *testing.T) {
	o := New(nil)
	o.base = map[string]string{}

	out := o.Merge(map[string]string{"X": "${NOT_DEFINED}/x"})

	v, ok := lookup(t, out, "X")
	require.True(t, ok)
	assert.Equal(t, "${NOT_DEFINED}/x", v)
}

func TestMergeSortedAndFromOS(t *testing.T) {
	t.Setenv("RELAYPILOT_TEST_BASE", "from-os")

	o := New(map[string]string{"B_KEY": "2", "A_KEY": "1"})
	out := o.Merge(nil)

	v, ok := lookup(t, out, "RELAYPILOT_TEST_BASE")
	require.True(t, ok)
	assert.Equal(t, "from-os", v)

	sorted := make([]string, len(out))
	copy(sorted, out)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1], sorted[i])
	}
}

func TestSetAfterNew(t *testing.T) {
	o := New(nil)
	o.base = map[string]string{}
	o.Set("K", "v")
	o.Set("", "ignored")

	out := o.Merge(nil)
	require.Len(t, out, 1)
	assert.Equal(t, "K=v", out[0])
}
