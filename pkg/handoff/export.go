// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"fmt"
	"strings"
)

// ToMermaid renders the pipeline as a Mermaid flowchart.
func ToMermaid(p *Pipeline) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, st := range p.Stages {
		label := st.ID
		if st.Agent != "" {
			label = fmt.Sprintf("%s: %s", st.ID, st.Agent)
		}
		if st.Optional {
			sb.WriteString(fmt.Sprintf("    %s([%s])\n", st.ID, label))
		} else {
			sb.WriteString(fmt.Sprintf("    %s[%s]\n", st.ID, label))
		}
	}

	for _, edge := range p.Edges {
		if isAlways(edge.Condition) {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", edge.From, edge.To))
		} else {
			sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", edge.From, mermaidEscape(edge.Condition), edge.To))
		}
	}

	if len(p.Stages) > 0 {
		sb.WriteString(fmt.Sprintf("    style %s fill:#90EE90\n", p.StartStage()))
	}
	return sb.String()
}

// ToDot renders the pipeline in Graphviz DOT.
func ToDot(p *Pipeline) string {
	var sb strings.Builder
	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TB;\n")
	sb.WriteString("    node [shape=box, style=rounded];\n")

	start := ""
	if len(p.Stages) > 0 {
		start = p.StartStage()
	}
	for _, st := range p.Stages {
		label := st.ID
		if st.Agent != "" {
			label = fmt.Sprintf("%s\\n(%s)", st.ID, st.Agent)
		}
		attrs := fmt.Sprintf("label=\"%s\"", label)
		if st.ID == start {
			attrs += ", style=\"rounded,filled\", fillcolor=\"#90EE90\""
		} else if st.Optional {
			attrs += ", style=\"rounded,dashed\""
		}
		sb.WriteString(fmt.Sprintf("    %q [%s];\n", st.ID, attrs))
	}

	for _, edge := range p.Edges {
		attrs := ""
		if !isAlways(edge.Condition) {
			attrs = fmt.Sprintf(" [label=%q]", edge.Condition)
		}
		sb.WriteString(fmt.Sprintf("    %q -> %q%s;\n", edge.From, edge.To, attrs))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func isAlways(cond string) bool {
	c := strings.TrimSpace(cond)
	return c == "" || c == "default" || c == "always"
}

func mermaidEscape(s string) string {
	return strings.NewReplacer("|", "/", "\"", "'").Replace(s)
}
