package env

import (
	"os"
	"sort"
	"strings"
)

// Overlay composes the environment handed to worker processes. The base is
// the supervisor's own environment, overridden first by the global variables
// from configuration and then by per-worker entries.
type Overlay struct {
	global map[string]string
	base   map[string]string
}

func New(global map[string]string) *Overlay {
	g := make(map[string]string, len(global))
	for k, v := range global {
		if k == "" {
			continue
		}
		g[k] = v
	}
	return &Overlay{global: g}
}

// FromOS caches the current process environment as the merge base. Called
// lazily by Merge when not invoked explicitly.
func (o *Overlay) FromOS() {
	base := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	o.base = base
}

// Set adds or replaces a global variable.
func (o *Overlay) Set(k, v string) {
	if k == "" {
		return
	}
	if o.global == nil {
		o.global = make(map[string]string)
	}
	o.global[k] = v
}

// Merge returns the final "K=V" slice for one worker: OS base, then global
// overrides, then the worker's own entries. ${VAR} references are expanded
// against the composed map; unknown references are left untouched. The
// result is sorted so spawns are reproducible.
func (o *Overlay) Merge(perWorker map[string]string) []string {
	if o.base == nil {
		o.FromOS()
	}
	m := make(map[string]string, len(o.base)+len(o.global)+len(perWorker))
	for k, v := range o.base {
		m[k] = v
	}
	for k, v := range o.global {
		m[k] = v
	}
	for k, v := range perWorker {
		if k == "" {
			continue
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
