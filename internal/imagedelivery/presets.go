package imagedelivery

import "strings"

// windowPreset is a named (WindowWidth, WindowCenter) pair offered at
// GET /presets and accepted as the `preset` query parameter on
// GET /images/{instanceUid}.
type windowPreset struct {
	Name   string
	Width  float64
	Center float64
}

var presets = []windowPreset{
	{Name: "lung", Width: 1500, Center: -600},
	{Name: "bone", Width: 2000, Center: 300},
	{Name: "soft-tissue", Width: 400, Center: 40},
	{Name: "brain", Width: 100, Center: 50},
	{Name: "liver", Width: 200, Center: 50},
	{Name: "chest-xray", Width: 2500, Center: 500},
	{Name: "bone-xray", Width: 4000, Center: 2000},
	{Name: "abdomen", Width: 350, Center: 50},
}

// resolvePreset looks up a preset by case-insensitive name.
func resolvePreset(name string) (windowPreset, bool) {
	lower := strings.ToLower(name)
	for _, p := range presets {
		if p.Name == lower {
			return p, true
		}
	}
	return windowPreset{}, false
}
