package util

import "time"

type Point struct {
	TS     time.Time
	Entity string
}

// Sliding mantém apenas os pontos dentro da duração configurada.
type Sliding struct {
	points []Point
}

func (s *Sliding) Add(p Point, keep time.Duration) {
	s.points = append(s.points, p)
	s.Prune(p.TS, keep)
}

func (s *Sliding) Prune(now time.Time, keep time.Duration) {
	cut := now.Add(-keep)
	i := 0
	for ; i < len(s.points); i++ {
		if s.points[i].TS.After(cut) {
			break
		}
	}
	if i > 0 {
		s.points = s.points[i:]
	}
}

func (s *Sliding) Count() int     { return len(s.points) }
func (s *Sliding) Items() []Point { return s.points }

// Last devolve o ponto mais recente da entidade, ou zero se ausente.
func (s *Sliding) Last(entity string) (Point, bool) {
	for i := len(s.points) - 1; i >= 0; i-- {
		if s.points[i].Entity == entity {
			return s.points[i], true
		}
	}
	return Point{}, false
}
