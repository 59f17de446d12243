package mask

import "testing"

func TestIterateCoversDisjointRectangles(t *testing.T) {
	cases := []struct {
		name          string
		layers, levels int
		set           [][2]int
	}{
		{"single bit", 4, 4, [][2]int{{1, 2}}},
		{"full layer run one level", 8, 4, [][2]int{{0, 0}, {1, 0}, {2, 0}, {3, 0}}},
		{"block across levels", 8, 4, [][2]int{
			{2, 0}, {3, 0}, {2, 1}, {3, 1},
		}},
		{"disjoint blocks", 8, 4, [][2]int{
			{0, 0}, {1, 0},
			{5, 3}, {6, 3}, {7, 3},
		}},
		{"checkerboard", 4, 4, [][2]int{
			{0, 0}, {2, 0}, {1, 1}, {3, 1},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := New(tc.layers, tc.levels)
			for _, s := range tc.set {
				m.Set(s[0], s[1])
			}
			k := m.Count()
			rects := m.Iterate()
			if len(rects) > k {
				t.Fatalf("got %d rects for %d set bits, want <= %d", len(rects), k, k)
			}

			// Rebuild the union and check it equals the original mask,
			// and that no two rectangles overlap.
			union := New(tc.layers, tc.levels)
			for i, r := range rects {
				for j, r2 := range rects {
					if i == j {
						continue
					}
					if rectsOverlap(r, r2) {
						t.Fatalf("rects overlap: %+v and %+v", r, r2)
					}
				}
				union.SetRange(r.BaseLayer, r.LayerCount, r.BaseLevel, r.LevelCount)
			}
			if !Equal(union, m) {
				t.Fatalf("union of rects does not equal original mask")
			}
		})
	}
}

func rectsOverlap(a, b Rect) bool {
	layerOverlap := a.BaseLayer < b.BaseLayer+b.LayerCount && b.BaseLayer < a.BaseLayer+a.LayerCount
	levelOverlap := a.BaseLevel < b.BaseLevel+b.LevelCount && b.BaseLevel < a.BaseLevel+a.LevelCount
	return layerOverlap && levelOverlap
}

func TestSetAlgebra(t *testing.T) {
	a := New(4, 4)
	a.Set(0, 0)
	a.Set(1, 1)
	b := New(4, 4)
	b.Set(1, 1)
	b.Set(2, 2)

	u := Union(a, b)
	if u.Count() != 3 {
		t.Fatalf("union count = %d, want 3", u.Count())
	}
	i := Intersect(a, b)
	if i.Count() != 1 || !i.Test(1, 1) {
		t.Fatalf("intersect wrong: count=%d", i.Count())
	}
	s := Subtract(a, b)
	if s.Count() != 1 || !s.Test(0, 0) {
		t.Fatalf("subtract wrong: count=%d", s.Count())
	}
	if !Intersects(a, b) {
		t.Fatalf("expected intersects")
	}
	if a.IsEmpty() {
		t.Fatalf("a should not be empty")
	}
	empty := New(4, 4)
	if !empty.IsEmpty() {
		t.Fatalf("expected empty")
	}
}

func TestFullMask(t *testing.T) {
	f := Full(3, 5)
	if f.Count() != 15 {
		t.Fatalf("full count = %d, want 15", f.Count())
	}
	rects := f.Iterate()
	if len(rects) != 1 {
		t.Fatalf("expected one rect for full mask, got %d", len(rects))
	}
	r := rects[0]
	if r.BaseLayer != 0 || r.LayerCount != 3 || r.BaseLevel != 0 || r.LevelCount != 5 {
		t.Fatalf("unexpected rect %+v", r)
	}
}

func TestHeapFallback(t *testing.T) {
	// 20 layers * 20 levels = 400 subresources > inlineWords*64 (256).
	m := New(20, 20)
	if m.heap == nil {
		t.Fatalf("expected heap-backed mask for large texture")
	}
	m.Set(19, 19)
	if !m.Test(19, 19) {
		t.Fatalf("expected bit set")
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, want 1", m.Count())
	}
}
