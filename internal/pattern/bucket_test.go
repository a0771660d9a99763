package pattern

import (
	"math"
	"testing"
	"time"
)

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		ts   time.Time
		want int
	}{
		// 2026-08-24 é segunda-feira
		{time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2026, 8, 24, 0, 14, 59, 0, time.UTC), 0},
		{time.Date(2026, 8, 24, 0, 15, 0, 0, time.UTC), 1},
		{time.Date(2026, 8, 24, 23, 45, 0, 0, time.UTC), 95},
		{time.Date(2026, 8, 26, 9, 15, 0, 0, time.UTC), 2*IntervalsPerDay + 37}, // quarta
		{time.Date(2026, 8, 30, 23, 45, 0, 0, time.UTC), TotalBuckets - 1},      // domingo
	}
	for _, tt := range tests {
		if got := BucketIndex(tt.ts); got != tt.want {
			t.Fatalf("BucketIndex(%v)=%d want=%d", tt.ts, got, tt.want)
		}
	}
}

func TestWeekdayIndexMondayZero(t *testing.T) {
	mon := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if WeekdayIndex(mon) != 0 {
		t.Fatalf("monday index=%d want=0", WeekdayIndex(mon))
	}
	if WeekdayIndex(sun) != 6 {
		t.Fatalf("sunday index=%d want=6", WeekdayIndex(sun))
	}
}

func TestTimeSlot(t *testing.T) {
	ts := time.Date(2026, 8, 24, 9, 20, 0, 0, time.UTC)
	if got := TimeSlot(ts); got != "monday 09:15" {
		t.Fatalf("TimeSlot=%q want=%q", got, "monday 09:15")
	}
}

func TestWelford(t *testing.T) {
	var b BucketStat
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		b.Add(v)
	}
	if b.Count() != 8 {
		t.Fatalf("count=%d want=8", b.Count())
	}
	if math.Abs(b.Mean()-5) > 1e-9 {
		t.Fatalf("mean=%v want=5", b.Mean())
	}
	if math.Abs(b.Variance()-4) > 1e-9 {
		t.Fatalf("variance=%v want=4", b.Variance())
	}
	if math.Abs(b.StdDev()-2) > 1e-9 {
		t.Fatalf("stddev=%v want=2", b.StdDev())
	}
}

func TestWelfordSingleObservation(t *testing.T) {
	var b BucketStat
	b.Add(3)
	if b.Variance() != 0 {
		t.Fatalf("variance com n=1 deve ser 0, veio %v", b.Variance())
	}
}

func TestBucketDocRoundTrip(t *testing.T) {
	var b BucketStat
	for _, v := range []float64{1, 2, 3, 4} {
		b.Add(v)
	}
	got := bucketFromDoc(b.doc())
	if got.Count() != b.Count() || math.Abs(got.Mean()-b.Mean()) > 1e-9 ||
		math.Abs(got.Variance()-b.Variance()) > 1e-9 {
		t.Fatalf("round trip divergiu: %+v vs %+v", got, b)
	}
}
