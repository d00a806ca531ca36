package worker

import (
	"os/exec"
	"strings"
	"time"
)

// Spec is the static definition of one worker, derived from configuration
// at supervisor construction time and never mutated afterwards.
type Spec struct {
	ID              string            `json:"id"`
	Enabled         bool              `json:"enabled"`
	Required        bool              `json:"required"`
	Command         string            `json:"command"`
	WorkDir         string            `json:"work_dir,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	StartupTimeout  time.Duration     `json:"startup_timeout"`
	SupportsControl bool              `json:"supports_control"`
	HealthURL       string            `json:"health_url,omitempty"`
}

// BuildCommand constructs the exec.Cmd for the spec's command string. An
// explicit leading shell invocation is honored without double-wrapping;
// shell metacharacters force a /bin/sh -c fallback; plain commands are
// split on whitespace and executed directly.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if script, ok := stripExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", script)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// stripExplicitShell detects "sh -c <script>" style prefixes and returns the
// script with one surrounding quote pair removed, so the configured quoting
// reaches the shell intact instead of being wrapped a second time.
func stripExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		script := trim[len(p):]
		if n := len(script); n >= 2 {
			if (script[0] == '\'' && script[n-1] == '\'') || (script[0] == '"' && script[n-1] == '"') {
				script = script[1 : n-1]
			}
		}
		return script, true
	}
	return "", false
}
