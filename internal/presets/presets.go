// Package presets provides named effect pools: the built-in stutter recipes
// plus any [[presets]] tables from the configuration file.
package presets

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"vdcrpt/internal/config"
	"vdcrpt/internal/effects"
)

// Preset is a named pool with a suggested iteration count.
type Preset struct {
	Name        string
	Description string
	Iterations  int
	Pool        effects.Pool
	BuiltIn     bool
}

type builtin struct {
	name        string
	description string
	length      int
	min, max    int
	iterations  int
}

var builtins = []builtin{
	{"Melting Chaos", "Long clips repeated eight times", 3000, 8, 8, 400},
	{"Jittery", "Large clips with short random trails", 20000, 1, 8, 200},
	{"Source Engine", "Very large clips, a few repeats each", 45000, 2, 6, 60},
	{"Subtle", "Small doubled clips", 200, 2, 2, 60},
	{"Many Artifacts", "Many short tripled clips", 500, 3, 3, 2000},
	{"Trash", "Single-byte stutters everywhere (unstable, breaks audio)", 1, 1, 1, 10000},
	{"Legacy", "The original command-line defaults", 1000, 10, 90, 50},
}

// Builtins returns the built-in presets in display order.
func Builtins() []Preset {
	out := make([]Preset, 0, len(builtins))
	for _, b := range builtins {
		e, err := effects.Stutter(b.length, b.min, b.max)
		if err != nil {
			panic(fmt.Sprintf("presets: built-in %q: %v", b.name, err))
		}
		pool, err := effects.NewPool(e)
		if err != nil {
			panic(fmt.Sprintf("presets: built-in %q: %v", b.name, err))
		}
		out = append(out, Preset{
			Name:        b.name,
			Description: b.description,
			Iterations:  b.iterations,
			Pool:        pool,
			BuiltIn:     true,
		})
	}
	return out
}

// Catalog is an ordered set of presets with case-insensitive lookup.
type Catalog struct {
	presets []Preset
	index   map[string]int
}

// NewCatalog merges user presets over the built-ins. A user preset whose name
// folds to a built-in's replaces it in place; others are appended.
func NewCatalog(user []config.Preset) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int)}
	for _, p := range Builtins() {
		c.put(p)
	}
	for _, u := range user {
		pool, err := effects.ParsePool(u.Effects...)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", u.Name, err)
		}
		c.put(Preset{
			Name:        strings.TrimSpace(u.Name),
			Description: strings.TrimSpace(u.Description),
			Iterations:  u.Iterations,
			Pool:        pool,
		})
	}
	return c, nil
}

// FromConfig builds the catalog for cfg.
func FromConfig(cfg *config.Config) (*Catalog, error) {
	if cfg == nil {
		return NewCatalog(nil)
	}
	return NewCatalog(cfg.Presets)
}

func (c *Catalog) put(p Preset) {
	key := foldName(p.Name)
	if i, ok := c.index[key]; ok {
		c.presets[i] = p
		return
	}
	c.index[key] = len(c.presets)
	c.presets = append(c.presets, p)
}

// Lookup finds a preset by name, ignoring case and surrounding space.
func (c *Catalog) Lookup(name string) (Preset, bool) {
	i, ok := c.index[foldName(name)]
	if !ok {
		return Preset{}, false
	}
	return c.presets[i], true
}

// All returns every preset in catalog order.
func (c *Catalog) All() []Preset {
	return append([]Preset(nil), c.presets...)
}

// Names returns preset names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.presets))
	for _, p := range c.presets {
		names = append(names, p.Name)
	}
	sort.Slice(names, func(i, j int) bool {
		return foldName(names[i]) < foldName(names[j])
	})
	return names
}

// foldName normalizes for comparison. A Caser is stateful, so each call gets
// its own.
func foldName(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
