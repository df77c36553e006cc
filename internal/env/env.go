// Package env composes the environment passed to supervised services.
package env

import (
	"os"
	"sort"
	"strings"
)

// Env layers global KEY=VALUE pairs over a base environment.
type Env struct {
	base   map[string]string
	global map[string]string
}

// New returns an Env whose base is the current process environment.
func New(global []string) *Env {
	return &Env{base: parse(os.Environ()), global: parse(global)}
}

// Empty returns an Env with no base, for tests and hermetic spawns.
func Empty(global []string) *Env {
	return &Env{base: map[string]string{}, global: parse(global)}
}

// Merge returns base, then global, then extra, with ${VAR} references in
// values expanded against the merged set. Output is sorted by key.
func (e *Env) Merge(extra ...string) []string {
	m := make(map[string]string, len(e.base)+len(e.global)+len(extra))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for k, v := range parse(extra) {
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

// Lookup returns the merged value of key without expansion.
func (e *Env) Lookup(key string) (string, bool) {
	if v, ok := e.global[key]; ok {
		return v, true
	}
	v, ok := e.base[key]
	return v, ok
}

func parse(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// expand replaces ${VAR} only; bare $VAR is left alone so values such as
// nginx variables survive.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(m[s[i+2:i+j]])
		s = s[i+j+1:]
	}
}
