package presets

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"vdcrpt/internal/config"
	"vdcrpt/internal/effects"
)

func TestBuiltinsMatchDesktopRecipes(t *testing.T) {
	got := map[string]string{}
	iterations := map[string]int{}
	for _, p := range Builtins() {
		got[p.Name] = p.Pool.String()
		iterations[p.Name] = p.Iterations
		if !p.BuiltIn {
			t.Fatalf("%s not marked built-in", p.Name)
		}
	}
	want := map[string]string{
		"Melting Chaos":  "stutter:3000:8",
		"Jittery":        "stutter:20000:1-8",
		"Source Engine":  "stutter:45000:2-6",
		"Subtle":         "stutter:200:2",
		"Many Artifacts": "stutter:500:3",
		"Trash":          "stutter:1:1",
		"Legacy":         "stutter:1000:10-90",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("built-in pools mismatch (-want +got):\n%s", diff)
	}
	if iterations["Melting Chaos"] != 400 || iterations["Trash"] != 10000 || iterations["Legacy"] != 50 {
		t.Fatalf("unexpected iterations %v", iterations)
	}
}

func TestLookupIgnoresCase(t *testing.T) {
	c, err := NewCatalog(nil)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	for _, name := range []string{"melting chaos", "MELTING  CHAOS", " Melting Chaos "} {
		if p, ok := c.Lookup(name); !ok || p.Name != "Melting Chaos" {
			t.Fatalf("Lookup(%q) = %+v, %v", name, p, ok)
		}
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Fatal("unexpected match for unknown preset")
	}
}

func TestUserPresetsOverrideAndAppend(t *testing.T) {
	c, err := NewCatalog([]config.Preset{
		{Name: "subtle", Description: "mine", Iterations: 5, Effects: []string{"add:1"}},
		{Name: "Wobble", Iterations: 120, Effects: []string{"stutter:800:2-6", "reverse"}},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	all := c.All()
	if len(all) != len(Builtins())+1 {
		t.Fatalf("expected one appended preset, got %d", len(all))
	}
	subtle, ok := c.Lookup("Subtle")
	if !ok || subtle.BuiltIn || subtle.Pool.String() != "add:1" || subtle.Iterations != 5 {
		t.Fatalf("override not applied: %+v", subtle)
	}
	if all[3].Name != "subtle" {
		t.Fatalf("override should keep built-in position, got %q at 3", all[3].Name)
	}
	wobble, ok := c.Lookup("wobble")
	if !ok || wobble.Pool.Len() != 2 {
		t.Fatalf("user preset missing: %+v", wobble)
	}
	if all[len(all)-1].Name != "Wobble" {
		t.Fatal("new presets should be appended")
	}
}

func TestNewCatalogRejectsBadEffects(t *testing.T) {
	_, err := NewCatalog([]config.Preset{{Name: "bad", Effects: []string{"melt"}}})
	if err == nil {
		t.Fatal("expected error for invalid effect")
	}
}

func TestFromConfigAndNames(t *testing.T) {
	cfg := config.Default()
	cfg.Presets = []config.Preset{{Name: "aardvark", Effects: []string{"reverse"}}}
	c, err := FromConfig(&cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	names := c.Names()
	if names[0] != "aardvark" || names[len(names)-1] != "Trash" {
		t.Fatalf("unexpected order %v", names)
	}
	p, _ := c.Lookup("aardvark")
	if p.Pool.Effects()[0].Kind != effects.KindReverse {
		t.Fatalf("unexpected pool %v", p.Pool)
	}
}
