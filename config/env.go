package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseNamespace parses the comma-separated `k=v` convention out of
// the named environment variable, e.g.
//
//	hci=cmd.complete.timeout=8s,cmd.status.timeout=2s,ringsize=128
//
// Unknown keys are returned as-is in the map; callers pick the keys
// they understand.
func ParseNamespace(envVar string) map[string]string {
	out := make(map[string]string)
	raw := os.Getenv(envVar)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}

// Duration looks up key in m, parsing it as a time.Duration
// (accepting Go duration syntax, e.g. "8s", "500ms"); returns def on
// a missing key or parse failure.
func Duration(m map[string]string, key string, def time.Duration) time.Duration {
	v, ok := m[key]
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Int looks up key in m as a base-10 integer, returning def on a
// missing key or parse failure.
func Int(m map[string]string, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool reads a boolean-valued key out of a parsed namespace.
func Bool(m map[string]string, key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// DebugEnabled reads the global verbose toggle, which is a standalone
// env var rather than a k=v namespace: DIRECT_DEBUG=1.
func DebugEnabled() bool {
	b, err := strconv.ParseBool(os.Getenv("DIRECT_DEBUG"))
	return err == nil && b
}
