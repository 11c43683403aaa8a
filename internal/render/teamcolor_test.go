package render

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"webditor/internal/maps"
)

func TestApplyTeamColorWeighting(t *testing.T) {
	diffuse := solid(2, 1, color.RGBA{128, 64, 0, 255})
	mask := NewSurface(2, 1)
	mask.SetRGBA(0, 0, color.RGBA{200, 200, 200, 255})
	mask.SetRGBA(1, 0, color.RGBA{0, 0, 0, 255})

	out := ApplyTeamColor(diffuse, mask, color.RGBA{255, 0, 0, 255})
	if got := out.RGBAAt(0, 0); got != (color.RGBA{128, 0, 0, 255}) {
		t.Errorf("painted pixel = %v, want {128 0 0 255}", got)
	}
	if got := out.RGBAAt(1, 0); got != (color.RGBA{128, 64, 0, 255}) {
		t.Errorf("unpainted pixel = %v, want diffuse copy", got)
	}
	if got := diffuse.RGBAAt(0, 0); got != (color.RGBA{128, 64, 0, 255}) {
		t.Errorf("diffuse input modified: %v", got)
	}
}

func TestApplyTeamColorThreshold(t *testing.T) {
	tests := []struct {
		name  string
		mask  color.NRGBA
		paint bool
	}{
		{"white", color.NRGBA{255, 255, 255, 255}, true},
		{"just above", color.NRGBA{128, 128, 128, 255}, true},
		{"mid gray", color.NRGBA{127, 200, 200, 255}, false},
		{"one dark channel", color.NRGBA{200, 200, 100, 255}, false},
		{"transparent white", color.NRGBA{255, 255, 255, 0}, false},
		{"faint white", color.NRGBA{255, 255, 255, 1}, true},
	}
	diffuse := solid(1, 1, color.RGBA{255, 255, 255, 255})
	team := color.RGBA{10, 20, 30, 255}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := newNRGBA(1, 1)
			mask.SetNRGBA(0, 0, tt.mask)
			got := ApplyTeamColor(diffuse, mask, team).RGBAAt(0, 0)
			painted := got == (color.RGBA{10, 20, 30, 255})
			if painted != tt.paint {
				t.Errorf("pixel = %v, painted=%v want %v", got, painted, tt.paint)
			}
		})
	}
}

func TestWeightRounding(t *testing.T) {
	tests := []struct {
		c, d uint8
		want uint8
	}{
		{255, 128, 128},
		{255, 255, 255},
		{0, 200, 0},
		{244, 128, 122},
		{4, 64, 1},
		{1, 128, 1}, // 0.50196 rounds up
		{1, 127, 0}, // 0.498 rounds down
	}
	for _, tt := range tests {
		if got := weight(tt.c, tt.d); got != tt.want {
			t.Errorf("weight(%d,%d) = %d, want %d", tt.c, tt.d, got, tt.want)
		}
	}
}

func TestApplyTeamColorNilMask(t *testing.T) {
	diffuse := solid(3, 3, color.RGBA{1, 2, 3, 255})
	out := ApplyTeamColor(diffuse, nil, color.RGBA{255, 0, 0, 255})
	if got := out.RGBAAt(1, 1); got != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("pixel = %v, want diffuse copy", got)
	}
}

func TestPaletteColor(t *testing.T) {
	p := DefaultPalette()
	if len(p) != 13 {
		t.Fatalf("default palette has %d colors, want 13", len(p))
	}
	c, ok := p.Color(maps.Owner{Color: 1})
	if !ok || c != (color.RGBA{12, 72, 204, 255}) {
		t.Errorf("slot 1 = %v, %v", c, ok)
	}
	c, ok = p.Color(maps.Owner{Color: 1, RGBColor: []int{1, 300, -4}})
	if !ok || c != (color.RGBA{1, 255, 0, 255}) {
		t.Errorf("explicit rgb = %v, %v", c, ok)
	}
	if _, ok := p.Color(maps.Owner{Color: 40}); ok {
		t.Error("out-of-range slot resolved")
	}
}

func TestLoadPalette(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palette.yaml")
	data := "colors:\n  - [1, 2, 3]\n  - [4, 5, 6]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPalette(path)
	if err != nil {
		t.Fatalf("LoadPalette: %v", err)
	}
	if p[0] != (color.RGBA{1, 2, 3, 255}) || p[1] != (color.RGBA{4, 5, 6, 255}) {
		t.Errorf("overridden slots = %v %v", p[0], p[1])
	}
	if p[2] != DefaultPalette()[2] {
		t.Errorf("slot 2 = %v, want default", p[2])
	}

	if _, err := LoadPalette(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
