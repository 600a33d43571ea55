package atlas

import "testing"

func TestPackerShelves(t *testing.T) {
	p := NewPacker(64, 64, 1, 0)

	tests := []struct {
		w, h int
		want Region
	}{
		{30, 10, Region{Layer: 0, X: 0, Y: 0, Width: 30, Height: 10}},
		{30, 12, Region{Layer: 0, X: 30, Y: 0, Width: 30, Height: 12}},
		// 4 texels left on the line: move to a new shelf below the tallest item.
		{10, 10, Region{Layer: 0, X: 0, Y: 12, Width: 10, Height: 10}},
		{54, 5, Region{Layer: 0, X: 10, Y: 12, Width: 54, Height: 5}},
	}
	for i, tt := range tests {
		got, ok := p.Pack(tt.w, tt.h)
		if !ok {
			t.Fatalf("Pack #%d (%dx%d) failed", i, tt.w, tt.h)
		}
		if got != tt.want {
			t.Errorf("Pack #%d = %v, want %v", i, got, tt.want)
		}
	}
	if p.AllocCount() != len(tests) {
		t.Errorf("AllocCount() = %d, want %d", p.AllocCount(), len(tests))
	}
}

func TestPackerPadding(t *testing.T) {
	p := NewPacker(64, 64, 1, 2)
	a, _ := p.Pack(10, 10)
	b, _ := p.Pack(10, 10)
	if b.X != a.X+10+2 {
		t.Errorf("second region X = %d, want %d", b.X, a.X+12)
	}
	if a.Overlaps(b) {
		t.Errorf("%v overlaps %v", a, b)
	}
}

func TestPackerLayersAndExhaustion(t *testing.T) {
	p := NewPacker(64, 64, 2, 0)
	var regions []Region
	for {
		r, ok := p.Pack(32, 32)
		if !ok {
			break
		}
		regions = append(regions, r)
	}
	// 4 per layer, 2 layers.
	if len(regions) != 8 {
		t.Fatalf("packed %d regions, want 8", len(regions))
	}
	if regions[3].Layer != 0 || regions[4].Layer != 1 {
		t.Errorf("layer switch at wrong index: %v, %v", regions[3], regions[4])
	}
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].Overlaps(regions[j]) {
				t.Errorf("%v overlaps %v", regions[i], regions[j])
			}
		}
	}

	p.Grow(3)
	r, ok := p.Pack(32, 32)
	if !ok {
		t.Fatal("Pack after Grow failed")
	}
	if r.Layer != 2 || r.X != 0 || r.Y != 0 {
		t.Errorf("Pack after Grow = %v, want origin of layer 2", r)
	}
}

func TestPackerRejectsOversized(t *testing.T) {
	p := NewPacker(64, 64, 1, 0)
	if _, ok := p.Pack(65, 1); ok {
		t.Error("Pack wider than a layer should fail")
	}
	if _, ok := p.Pack(1, 65); ok {
		t.Error("Pack taller than a layer should fail")
	}
}

func TestPackerZeroSize(t *testing.T) {
	p := NewPacker(64, 64, 1, 0)
	r, ok := p.Pack(0, 0)
	if !ok || r.IsValid() {
		t.Errorf("Pack(0, 0) = %v, %v; want empty region, true", r, ok)
	}
	if p.AllocCount() != 0 {
		t.Errorf("zero-size pack counted as allocation")
	}
}

func TestPackerReset(t *testing.T) {
	p := NewPacker(64, 64, 1, 0)
	p.Pack(64, 64)
	if p.Utilization() != 1 {
		t.Errorf("Utilization() = %v, want 1", p.Utilization())
	}
	p.Reset()
	r, ok := p.Pack(8, 8)
	if !ok || r.X != 0 || r.Y != 0 {
		t.Errorf("Pack after Reset = %v, %v", r, ok)
	}
}
