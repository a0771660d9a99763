package ml

import (
	"math"
	"time"
)

const FeatureDim = 7

// FeatureVector: hora, bucket de 15min, dia da semana, fim de semana,
// tempo desde a última mudança, taxa recente e índice da entidade,
// tudo normalizado para faixas comparáveis.
type FeatureVector [FeatureDim]float64

func extract(ts time.Time, sinceLast time.Duration, recentCount int, entityIdxNorm float64) FeatureVector {
	weekday := (int(ts.Weekday()) + 6) % 7 // segunda=0

	isWeekend := 0.0
	if weekday >= 5 {
		isWeekend = 1.0
	}

	since := sinceLast.Seconds()
	if since < 0 {
		since = 0
	}
	since = math.Min(since, 86400) / 86400

	return FeatureVector{
		float64(ts.Hour()) / 23.0,
		float64(ts.Minute()/15) / 3.0,
		float64(weekday) / 6.0,
		isWeekend,
		since,
		math.Min(float64(recentCount), 20) / 20.0,
		entityIdxNorm,
	}
}

// scaler mantém min/max corrente por dimensão para normalização incremental.
type scaler struct {
	Min  [FeatureDim]float64 `json:"min"`
	Max  [FeatureDim]float64 `json:"max"`
	Seen bool                `json:"seen"`
}

func (s *scaler) Observe(f FeatureVector) {
	if !s.Seen {
		s.Min, s.Max, s.Seen = f, f, true
		return
	}
	for i, v := range f {
		if v < s.Min[i] {
			s.Min[i] = v
		}
		if v > s.Max[i] {
			s.Max[i] = v
		}
	}
}

func (s *scaler) Transform(f FeatureVector) FeatureVector {
	if !s.Seen {
		return f
	}
	var out FeatureVector
	for i, v := range f {
		span := s.Max[i] - s.Min[i]
		if span <= 0 {
			out[i] = 0.5
			continue
		}
		out[i] = math.Max(0, math.Min(1, (v-s.Min[i])/span))
	}
	return out
}
