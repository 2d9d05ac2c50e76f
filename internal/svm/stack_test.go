package svm

import "testing"

func TestStackFirstFitAndPeak(t *testing.T) {
	s := NewStack(8)
	a, ok := s.Find(3)
	if !ok || a != 0 {
		t.Fatalf("first vec3 at %d (%t), want 0", a, ok)
	}
	b, _ := s.Find(1)
	if b != 3 {
		t.Fatalf("scalar at %d, want 3", b)
	}
	s.Release(a, 3)
	c, _ := s.Find(2)
	if c != 0 {
		t.Fatalf("freed range not reused: got %d", c)
	}
	if s.Peak() != 4 {
		t.Fatalf("peak = %d, want 4", s.Peak())
	}
	if s.InUse() != 3 {
		t.Fatalf("in use = %d, want 3", s.InUse())
	}
	if _, ok := s.Find(5); ok {
		t.Fatalf("5 contiguous slots should not fit")
	}
}

func TestStackRetainNeedsMatchingReleases(t *testing.T) {
	s := NewStack(4)
	off, _ := s.Find(3)
	s.Retain(off, 3)
	s.Release(off, 3)
	if s.InUse() != 3 {
		t.Fatalf("shared range released too early")
	}
	s.Release(off, 3)
	if s.InUse() != 0 {
		t.Fatalf("range still in use after last release")
	}
}

func TestEncodeUChar4RoundTrip(t *testing.T) {
	w := EncodeUChar4(1, StackInvalid, 0, 42)
	x, y, z, q := DecodeUChar4(w)
	if x != 1 || y != StackInvalid || z != 0 || q != 42 {
		t.Fatalf("decoded %d %d %d %d", x, y, z, q)
	}
}
