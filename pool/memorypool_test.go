package pool

import "testing"

func TestMemoryPool_DestroyCascadesToChildren(t *testing.T) {
	root := NewRootPool()
	child := root.NewChild()
	grandchild := child.NewChild()

	var released []string
	child.Track(func() { released = append(released, "child") })
	grandchild.Track(func() { released = append(released, "grandchild") })

	root.Destroy()

	if len(released) != 2 {
		t.Fatalf("expected 2 resources released, got %d: %v", len(released), released)
	}
	if !grandchild.Destroyed() || !child.Destroyed() {
		t.Error("expected both descendants marked destroyed")
	}
}

func TestMemoryPool_DestroyIdempotent(t *testing.T) {
	p := NewRootPool()
	count := 0
	p.Track(func() { count++ })
	p.Destroy()
	p.Destroy()
	if count != 1 {
		t.Errorf("expected release exactly once, got %d", count)
	}
}

func TestMemoryPool_TrackAfterDestroyReleasesImmediately(t *testing.T) {
	p := NewRootPool()
	p.Destroy()
	called := false
	p.Track(func() { called = true })
	if !called {
		t.Error("expected Track on a destroyed pool to release immediately")
	}
}

func TestMemoryPool_NewChildOfDestroyedParentIsDestroyed(t *testing.T) {
	p := NewRootPool()
	p.Destroy()
	child := p.NewChild()
	if !child.Destroyed() {
		t.Error("expected child of a destroyed parent to be born destroyed")
	}
}

func TestMemoryPool_DestroyAndDetachRemovesFromParent(t *testing.T) {
	root := NewRootPool()
	child := root.NewChild()
	child.DestroyAndDetach()

	// A second child under root must still work after the first detached.
	second := root.NewChild()
	if second.Destroyed() {
		t.Error("unrelated sibling must not be affected by a detach")
	}
}
