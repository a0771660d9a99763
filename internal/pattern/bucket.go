package pattern

import (
	"fmt"
	"math"
	"time"
)

const (
	IntervalsPerDay    = 96
	MinutesPerInterval = 15
	DaysInWeek         = 7
	TotalBuckets       = DaysInWeek * IntervalsPerDay // 672
)

var dayNames = [DaysInWeek]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// WeekdayIndex com segunda=0 e domingo=6.
func WeekdayIndex(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }

func IntervalIndex(t time.Time) int {
	return (t.Hour()*60 + t.Minute()) / MinutesPerInterval
}

func BucketIndex(t time.Time) int {
	return WeekdayIndex(t)*IntervalsPerDay + IntervalIndex(t)
}

func intervalLabel(interval int) string {
	m := interval * MinutesPerInterval
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// TimeSlot devolve o rótulo legível do bucket, ex: "monday 09:15".
func TimeSlot(t time.Time) string {
	return dayNames[WeekdayIndex(t)] + " " + intervalLabel(IntervalIndex(t))
}

// BucketStat acumula média/variância por atualização incremental (Welford).
// O histórico bruto nunca é retido.
type BucketStat struct {
	n    int
	mean float64
	m2   float64
}

func (b *BucketStat) Add(v float64) {
	b.n++
	d := v - b.mean
	b.mean += d / float64(b.n)
	b.m2 += d * (v - b.mean)
}

func (b *BucketStat) Count() int    { return b.n }
func (b *BucketStat) Mean() float64 { return b.mean }

func (b *BucketStat) Variance() float64 {
	if b.n < 2 {
		return 0
	}
	return math.Max(0, b.m2/float64(b.n))
}

func (b *BucketStat) StdDev() float64 { return math.Sqrt(b.Variance()) }

type bucketDoc struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

func (b *BucketStat) doc() bucketDoc {
	return bucketDoc{Count: b.n, Mean: b.mean, Variance: b.Variance()}
}

func bucketFromDoc(d bucketDoc) BucketStat {
	return BucketStat{n: d.Count, mean: d.Mean, m2: d.Variance * float64(d.Count)}
}
