package imagedelivery

import "testing"

func float64Ptr(v float64) *float64 { return &v }

func TestResolveWindowExplicitOverridesEverything(t *testing.T) {
	defaultWC, defaultWW := float64Ptr(50), float64Ptr(400)
	w, err := resolveWindow(float64Ptr(100), float64Ptr(50), "bone", defaultWC, defaultWW, nil)
	if err != nil {
		t.Fatalf("resolveWindow: %v", err)
	}
	if w.Center != 100 || w.Width != 50 {
		t.Fatalf("window = (%v, %v), want (100, 50)", w.Center, w.Width)
	}
}

func TestResolveWindowPresetBeatsDefault(t *testing.T) {
	defaultWC, defaultWW := float64Ptr(50), float64Ptr(400)
	w, err := resolveWindow(nil, nil, "lung", defaultWC, defaultWW, nil)
	if err != nil {
		t.Fatalf("resolveWindow: %v", err)
	}
	if w.Center != -600 || w.Width != 1500 {
		t.Fatalf("window = (%v, %v), want lung preset (-600, 1500)", w.Center, w.Width)
	}
}

func TestResolveWindowUnknownPresetErrors(t *testing.T) {
	_, err := resolveWindow(nil, nil, "not-a-preset", nil, nil, nil)
	if err != errUnknownPreset {
		t.Fatalf("err = %v, want errUnknownPreset", err)
	}
}

func TestResolveWindowFallsBackToInstanceDefault(t *testing.T) {
	defaultWC, defaultWW := float64Ptr(40), float64Ptr(350)
	w, err := resolveWindow(nil, nil, "", defaultWC, defaultWW, nil)
	if err != nil {
		t.Fatalf("resolveWindow: %v", err)
	}
	if w.Center != 40 || w.Width != 350 {
		t.Fatalf("window = (%v, %v), want instance default (40, 350)", w.Center, w.Width)
	}
}

func TestResolveWindowFallsBackToStatistics(t *testing.T) {
	frame := &decodedFrame{Values: []float64{-100, 0, 900}, Rows: 1, Cols: 3}
	w, err := resolveWindow(nil, nil, "", nil, nil, frame)
	if err != nil {
		t.Fatalf("resolveWindow: %v", err)
	}
	if w.Center != 400 || w.Width != 1000 {
		t.Fatalf("window = (%v, %v), want statistical (400, 1000)", w.Center, w.Width)
	}
}

func TestStatisticalWindowConstantFrameAvoidsZeroWidth(t *testing.T) {
	frame := &decodedFrame{Values: []float64{5, 5, 5}, Rows: 1, Cols: 3}
	w := statisticalWindow(frame)
	if w.Width != 1 {
		t.Fatalf("width = %v, want 1 for a constant frame", w.Width)
	}
}

func TestApplyWindowMapsCenterToMidGray(t *testing.T) {
	frame := &decodedFrame{Values: []float64{40}, Rows: 1, Cols: 1}
	samples := applyWindow(frame, 1, 0, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME2", false)
	if samples[0] < 120 || samples[0] > 135 {
		t.Fatalf("sample at window center = %d, want near 127", samples[0])
	}
}

func TestApplyWindowClampsToRange(t *testing.T) {
	frame := &decodedFrame{Values: []float64{-10000, 10000}, Rows: 1, Cols: 2}
	samples := applyWindow(frame, 1, 0, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME2", false)
	if samples[0] != 0 {
		t.Fatalf("low clamp = %d, want 0", samples[0])
	}
	if samples[1] != 255 {
		t.Fatalf("high clamp = %d, want 255", samples[1])
	}
}

func TestApplyWindowMonochrome1Inverts(t *testing.T) {
	frame := &decodedFrame{Values: []float64{-10000}, Rows: 1, Cols: 1}
	mono2 := applyWindow(frame, 1, 0, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME2", false)
	mono1 := applyWindow(frame, 1, 0, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME1", false)
	if mono2[0] == mono1[0] {
		t.Fatal("MONOCHROME1 should invert relative to MONOCHROME2")
	}
}

func TestApplyWindowInvertFlagTogglesIndependentlyOfMonochrome1(t *testing.T) {
	frame := &decodedFrame{Values: []float64{-10000}, Rows: 1, Cols: 1}
	mono1 := applyWindow(frame, 1, 0, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME1", false)
	mono1Inverted := applyWindow(frame, 1, 0, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME1", true)
	if mono1[0] == mono1Inverted[0] {
		t.Fatal("invert flag should toggle output even when MONOCHROME1 already inverted")
	}
}

func TestApplyWindowAppliesRescaleSlopeIntercept(t *testing.T) {
	raw := &decodedFrame{Values: []float64{0}, Rows: 1, Cols: 1}
	noRescale := applyWindow(raw, 1, 0, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME2", false)
	withIntercept := applyWindow(raw, 1, 1000, effectiveWindow{Center: 40, Width: 400}, "MONOCHROME2", false)
	if noRescale[0] == withIntercept[0] {
		t.Fatal("rescale intercept should shift the mapped sample")
	}
}
