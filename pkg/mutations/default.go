package mutations

import "strings"

// defaultTemplates is the built-in mutation set, in probe order.
var defaultTemplates = []struct {
	name     string
	template string
}{
	{"nospace", "{name}:{value}"},
	{"colon-prefix-space", "{name} : {value}"},
	{"colon-prefix-tab", "{name}\t: {value}"},
	{"colon-prefix-vtab", "{name}\x0b: {value}"},
	{"colon-prefix-null", "{name}\x00: {value}"},
	{"colon-prefix-cr", "{name}\r: {value}"},
	{"colon-prefix-chars", "{name} abcd: {value}"},
	{"colon-post-tab", "{name}:\t{value}"},
	{"colon-post-vtab", "{name}:\x0b{value}"},
	{"colon-post-null", "{name}:\x00{value}"},
	{"colon-post-cr", "{name}:\r{value}"},
	{"colon-post-chars", "{name}:abcd {value}"},
	{"line-prefix-space", " {name}: {value}"},
	{"line-prefix-tab", "\t{name}: {value}"},
	{"line-prefix-vtab", "\x0b{name}: {value}"},
	{"line-prefix-null", "\x00{name}: {value}"},
	{"line-prefix-cr", "\r{name}: {value}"},
	{"cr", "X-Header: y\r{name}: {value}"},
	{"double-cr", "X-Header: y\r\r{name}: {value}"},
	{"line-folded", "{name}:\r\n {value}"},
	{"value-suffix-space", "{name}: {value} "},
	{"value-suffix-tab", "{name}: {value}\t"},
	{"value-quoted", "{name}: \"{value}\""},
	{"hex", "{name}: 0x{value}"},
	{"signed", "{name}: +{value}"},
}

// defaultFuncs are mutations of the header name itself.
var defaultFuncs = []struct {
	name string
	fn   RenderFunc
}{
	{"uppercase", func(name, value string) string {
		return strings.ToUpper(name) + ": " + value
	}},
	{"lowercase", func(name, value string) string {
		return strings.ToLower(name) + ": " + value
	}},
	{"underscore", func(name, value string) string {
		return strings.ReplaceAll(name, "-", "_") + ": " + value
	}},
	{"cr-hyphenated", func(name, value string) string {
		return strings.ReplaceAll(name, "-", "\r") + ": " + value
	}},
	{"space-hyphenated", func(name, value string) string {
		return strings.ReplaceAll(name, "-", " ") + ": " + value
	}},
}

// Default returns a fresh copy of the built-in catalog.
func Default() *Catalog {
	c := New()
	for _, m := range defaultTemplates {
		// names are unique by construction
		_ = c.Add(m.name, Template(m.template))
	}
	for _, m := range defaultFuncs {
		_ = c.Add(m.name, m.fn)
	}
	return c
}
