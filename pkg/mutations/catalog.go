// Package mutations holds catalogs of Content-Length header line mutations.
//
// A mutation renders a header line such as "Content-Length: 0" into an
// obfuscated variant. Rendering is deterministic and depends only on the
// header name, the header value and the mutation.
package mutations

import (
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
)

// RenderFunc renders a header line from its name and value.
type RenderFunc func(name, value string) string

// Catalog is an ordered collection of uniquely named mutations.
type Catalog struct {
	names  []string
	render map[string]RenderFunc
}

var _ core.MutationCatalog = (*Catalog)(nil)

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{render: make(map[string]RenderFunc)}
}

// Add appends a mutation. Names must be unique and non-empty.
func (c *Catalog) Add(name string, fn RenderFunc) error {
	if name == "" {
		return fmt.Errorf("mutation name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("mutation %q has no renderer", name)
	}
	if _, exists := c.render[name]; exists {
		return fmt.Errorf("duplicate mutation %q", name)
	}
	c.names = append(c.names, name)
	c.render[name] = fn
	return nil
}

// AddTemplate appends a mutation rendered from a template containing
// {name} and {value} placeholders.
func (c *Catalog) AddTemplate(name, template string) error {
	if !strings.Contains(template, "{value}") {
		return fmt.Errorf("mutation %q: template has no {value} placeholder", name)
	}
	return c.Add(name, Template(template))
}

// Names returns mutation names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of mutations.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Has reports whether the catalog contains name.
func (c *Catalog) Has(name string) bool {
	_, ok := c.render[name]
	return ok
}

// Render applies mutation to a header line of the form "Name: value".
func (c *Catalog) Render(headerLine string, mutation string) ([]byte, error) {
	fn, ok := c.render[mutation]
	if !ok {
		return nil, fmt.Errorf("unknown mutation %q", mutation)
	}
	name, value, err := SplitHeaderLine(headerLine)
	if err != nil {
		return nil, fmt.Errorf("mutation %q: %w", mutation, err)
	}
	return []byte(fn(name, value)), nil
}

// Subset returns a catalog restricted to names, keeping this catalog's order.
func (c *Catalog) Subset(names ...string) (*Catalog, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !c.Has(n) {
			return nil, fmt.Errorf("unknown mutation %q", n)
		}
		want[n] = true
	}

	sub := New()
	for _, n := range c.names {
		if want[n] {
			sub.names = append(sub.names, n)
			sub.render[n] = c.render[n]
		}
	}
	return sub, nil
}

// SplitHeaderLine splits "Name: value" at the first colon and trims the
// optional whitespace around the value.
func SplitHeaderLine(line string) (string, string, error) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", fmt.Errorf("malformed header line %q", line)
	}
	return line[:idx], strings.Trim(line[idx+1:], " \t"), nil
}

// Template returns a RenderFunc substituting {name} and {value}.
func Template(template string) RenderFunc {
	return func(name, value string) string {
		r := strings.NewReplacer("{name}", name, "{value}", value)
		return r.Replace(template)
	}
}
