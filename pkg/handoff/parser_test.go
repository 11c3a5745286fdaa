package handoff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const customYAML = `
id: custom-travel
domain: travel
stages:
  - id: destination
  - id: booking
    requires: [destination]
edges:
  - from: destination
    to: booking
`

func TestParseYAML(t *testing.T) {
	p, err := ParseYAML([]byte(customYAML))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if p.ID != "custom-travel" || p.StartStage() != "destination" {
		t.Fatalf("unexpected pipeline %+v", p)
	}
}

func TestParseJSON(t *testing.T) {
	payload := []byte(`{
  "id": "pipeline-json",
  "domain": "career",
  "start": "career",
  "stages": [{"id": "career"}, {"id": "skill", "reads": ["career"]}],
  "edges": [{"from": "career", "to": "skill"}]
}`)
	p, err := ParseJSON(payload)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if len(p.Stages) != 2 || p.Stages[1].Reads[0] != "career" {
		t.Fatalf("unexpected stages %+v", p.Stages)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"empty":           `id: x`,
		"duplicate":       "id: x\nstages:\n  - id: a\n  - id: a\n",
		"unknown edge":    "id: x\nstages:\n  - id: a\nedges:\n  - from: a\n    to: b\n",
		"unknown require": "id: x\nstages:\n  - id: a\n    requires: [z]\n",
		"bad condition":   "id: x\nstages:\n  - id: a\n  - id: b\nedges:\n  - from: a\n    to: b\n    condition: nope\n",
		"cycle":           "id: x\nstages:\n  - id: a\n  - id: b\nedges:\n  - from: a\n    to: b\n  - from: b\n    to: a\n",
		"bad start":       "id: x\nstart: q\nstages:\n  - id: a\n",
	}
	for name, doc := range cases {
		if _, err := ParseYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	p, _ := Builtin("game")
	data, err := MarshalYAML(p)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	back, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(back.Edges) != len(p.Edges) || back.Edges[0].Condition != "output.narrator.combat==true" {
		t.Fatalf("edges lost in round trip: %+v", back.Edges)
	}
	if _, err := MarshalJSON(p, true); err != nil {
		t.Fatalf("marshal json: %v", err)
	}
}

func TestCatalogOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "travel.yaml"), []byte(customYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewCatalog(dir)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	p, err := c.Get("travel")
	if err != nil || p.ID != "custom-travel" {
		t.Fatalf("expected override, got %v err=%v", p, err)
	}
	if got := strings.Join(c.Domains(), ","); got != "career,game,travel" {
		t.Fatalf("unexpected domains %s", got)
	}
	if _, err := c.Get("student"); err == nil {
		t.Fatalf("expected unknown domain to fail")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline")
	if err := os.WriteFile(path, []byte(customYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("auto-detected load: %v", err)
	}
}

func TestToMermaid(t *testing.T) {
	p, _ := Builtin("game")
	out := ToMermaid(p)
	for _, want := range []string{"graph TD", "monster([monster: MonsterAgent])", "narrator -->|output.narrator.combat==true| monster", "style narrator"} {
		if !strings.Contains(out, want) {
			t.Errorf("mermaid output missing %q:\n%s", want, out)
		}
	}
	if dot := ToDot(p); !strings.Contains(dot, `"narrator" -> "item";`) {
		t.Errorf("dot output missing plain edge:\n%s", dot)
	}
}
