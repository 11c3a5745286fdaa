package handoff

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jllopis/relay/pkg/errors"
)

//go:embed pipelines/*.yaml
var builtinFS embed.FS

// Catalog resolves pipelines by domain.
type Catalog struct {
	pipelines map[string]*Pipeline
}

// Builtin returns the embedded pipeline for a domain.
func Builtin(domain string) (*Pipeline, error) {
	data, err := builtinFS.ReadFile("pipelines/" + domain + ".yaml")
	if err != nil {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no pipeline for domain %q", domain), nil)
	}
	return ParseYAML(data)
}

// NewCatalog loads the embedded pipelines and, when dir is set, overrides
// them with any *.yaml, *.yml or *.json definition found there.
func NewCatalog(dir string) (*Catalog, error) {
	c := &Catalog{pipelines: make(map[string]*Pipeline)}
	entries, err := builtinFS.ReadDir("pipelines")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile("pipelines/" + e.Name())
		if err != nil {
			return nil, err
		}
		p, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("builtin %s: %w", e.Name(), err)
		}
		c.pipelines[p.Domain] = p
	}
	if dir == "" {
		return c, nil
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definitions: %w", err)
	}
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		p, err := LoadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		if p.Domain == "" {
			return nil, fmt.Errorf("%s: pipeline domain is required", f.Name())
		}
		c.pipelines[p.Domain] = p
	}
	return c, nil
}

// Get returns the pipeline serving domain.
func (c *Catalog) Get(domain string) (*Pipeline, error) {
	p, ok := c.pipelines[domain]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no pipeline for domain %q", domain), nil).
			WithContext("domain", domain)
	}
	return p, nil
}

// Domains lists the catalog's domains, sorted.
func (c *Catalog) Domains() []string {
	out := make([]string, 0, len(c.pipelines))
	for d := range c.pipelines {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
