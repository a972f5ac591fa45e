package imagedelivery

import "testing"

func TestResolvePresetCaseInsensitive(t *testing.T) {
	p, ok := resolvePreset("LUNG")
	if !ok {
		t.Fatal("expected lung preset to resolve")
	}
	if p.Width != 1500 || p.Center != -600 {
		t.Fatalf("lung preset = (%v, %v), want (1500, -600)", p.Width, p.Center)
	}
}

func TestResolvePresetUnknownName(t *testing.T) {
	if _, ok := resolvePreset("not-a-real-preset"); ok {
		t.Fatal("expected unknown preset name to not resolve")
	}
}

func TestResolvePresetCoversExactSet(t *testing.T) {
	want := map[string][2]float64{
		"lung":        {1500, -600},
		"bone":        {2000, 300},
		"soft-tissue": {400, 40},
		"brain":       {100, 50},
		"liver":       {200, 50},
		"chest-xray":  {2500, 500},
		"bone-xray":   {4000, 2000},
		"abdomen":     {350, 50},
	}
	if len(presets) != len(want) {
		t.Fatalf("got %d presets, want %d", len(presets), len(want))
	}
	for name, wv := range want {
		p, ok := resolvePreset(name)
		if !ok {
			t.Fatalf("preset %q missing", name)
		}
		if p.Width != wv[0] || p.Center != wv[1] {
			t.Fatalf("preset %q = (%v, %v), want (%v, %v)", name, p.Width, p.Center, wv[0], wv[1])
		}
	}
}
