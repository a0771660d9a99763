package util

import (
	"testing"
	"time"
)

func TestSlidingPrune(t *testing.T) {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	var s Sliding
	for i := 0; i < 5; i++ {
		s.Add(Point{TS: base.Add(time.Duration(i) * time.Minute), Entity: "a"}, 2*time.Minute)
	}
	// janela de 2min a partir do último ponto (09:04): sobram 09:03 e 09:04
	if s.Count() != 2 {
		t.Fatalf("count=%d want=2", s.Count())
	}
}

func TestSlidingLast(t *testing.T) {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	var s Sliding
	s.Add(Point{TS: base, Entity: "a"}, time.Hour)
	s.Add(Point{TS: base.Add(time.Minute), Entity: "b"}, time.Hour)
	s.Add(Point{TS: base.Add(2 * time.Minute), Entity: "a"}, time.Hour)

	p, ok := s.Last("a")
	if !ok || !p.TS.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("Last(a)=%+v ok=%v", p, ok)
	}
	if _, ok := s.Last("c"); ok {
		t.Fatalf("Last(c) não deveria existir")
	}
}
