package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommandDirect(t *testing.T) {
	s := Spec{ID: "relay", Command: "sleep 5"}
	cmd := s.BuildCommand()
	require.GreaterOrEqual(t, len(cmd.Args), 2)
	assert.Contains(t, cmd.Args[0], "sleep")
	assert.Equal(t, "5", cmd.Args[1])
}

func TestBuildCommandMetacharactersUseShell(t *testing.T) {
	s := Spec{ID: "relay", Command: "echo hi && sleep 1"}
	cmd := s.BuildCommand()
	require.Len(t, cmd.Args, 3)
	assert.Equal(t, "/bin/sh", cmd.Args[0])
	assert.Equal(t, "-c", cmd.Args[1])
	assert.Equal(t, "echo hi && sleep 1", cmd.Args[2])
}

func TestBuildCommandExplicitShellNotDoubleWrapped(t *testing.T) {
	s := Spec{ID: "relay", Command: `sh -c 'echo hi > /tmp/x'`}
	cmd := s.BuildCommand()
	require.Len(t, cmd.Args, 3)
	assert.Equal(t, "/bin/sh", cmd.Args[0])
	assert.Equal(t, "-c", cmd.Args[1])
	assert.Equal(t, "echo hi > /tmp/x", cmd.Args[2], "outer quotes stripped, no extra shell layer")
}

func TestBuildCommandEmptyFallsBackToTrue(t *testing.T) {
	s := Spec{ID: "relay"}
	cmd := s.BuildCommand()
	assert.Contains(t, cmd.Args[0], "true")
}

func TestStripExplicitShell(t *testing.T) {
	cases := []struct {
		in     string
		script string
		ok     bool
	}{
		{`sh -c 'sleep 1'`, "sleep 1", true},
		{`/bin/sh -c "echo hi"`, "echo hi", true},
		{`/usr/bin/sh -c run`, "run", true},
		{"bash -c 'x'", "", false},
		{"sleep 1", "", false},
	}
	for _, c := range cases {
		script, ok := stripExplicitShell(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.Equal(t, c.script, script, "input %q", c.in)
		}
	}
}
