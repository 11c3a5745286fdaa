package handoff

import (
	"fmt"
	"strings"

	"github.com/jllopis/relay/pkg/session"
)

type condKind int

const (
	condAlways condKind = iota
	condEquals
	condNotEquals
	condContains
	condExists
)

type condition struct {
	kind  condKind
	stage string
	path  []string
	value string
}

// parseCondition understands:
//
//	""  "default"  "always"
//	exists:<stage>
//	output.<stage>.<path>==<value>
//	output.<stage>.<path>!=<value>
//	output.<stage>.<path>.contains:<value>
func parseCondition(raw string) (condition, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "default", "always":
		return condition{kind: condAlways}, nil
	}
	if stage, ok := strings.CutPrefix(raw, "exists:"); ok {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			return condition{}, fmt.Errorf("exists condition needs a stage")
		}
		return condition{kind: condExists, stage: stage}, nil
	}
	ref, ok := strings.CutPrefix(raw, "output.")
	if !ok {
		return condition{}, fmt.Errorf("unsupported condition %q", raw)
	}

	var (
		kind  condKind
		left  string
		value string
	)
	switch {
	case strings.Contains(ref, "!="):
		left, value, _ = strings.Cut(ref, "!=")
		kind = condNotEquals
	case strings.Contains(ref, "=="):
		left, value, _ = strings.Cut(ref, "==")
		kind = condEquals
	case strings.Contains(ref, ".contains:"):
		left, value, _ = strings.Cut(ref, ".contains:")
		kind = condContains
	default:
		return condition{}, fmt.Errorf("condition %q has no operator", raw)
	}
	parts := strings.Split(strings.TrimSpace(left), ".")
	if len(parts) < 2 || parts[0] == "" {
		return condition{}, fmt.Errorf("condition %q must name a stage and a field", raw)
	}
	for _, p := range parts {
		if p == "" {
			return condition{}, fmt.Errorf("condition %q has an empty path segment", raw)
		}
	}
	return condition{kind: kind, stage: parts[0], path: parts[1:], value: strings.TrimSpace(value)}, nil
}

func (c condition) eval(results map[string]session.AgentResult) bool {
	if c.kind == condAlways {
		return true
	}
	r, ok := results[c.stage]
	if c.kind == condExists {
		return ok && r.Success
	}
	if !ok || !r.Success {
		return false
	}
	v, found := lookupPath(r.Payload, c.path)
	switch c.kind {
	case condEquals:
		return found && formatValue(v) == c.value
	case condNotEquals:
		return !found || formatValue(v) != c.value
	case condContains:
		if !found {
			return false
		}
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if formatValue(item) == c.value {
					return true
				}
			}
			return false
		}
		return strings.Contains(formatValue(v), c.value)
	}
	return false
}

func lookupPath(payload map[string]any, path []string) (any, bool) {
	var cur any = payload
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
