package pattern

import "time"

// EntityPattern guarda os 672 buckets (7 dias × 96 intervalos) de uma entidade.
type EntityPattern struct {
	EntityID string

	buckets  [TotalBuckets]BucketStat
	total    int
	firstObs time.Time
	lastObs  time.Time
}

func NewEntityPattern(entityID string) *EntityPattern {
	return &EntityPattern{EntityID: entityID}
}

func (p *EntityPattern) Record(ts time.Time) {
	p.buckets[BucketIndex(ts)].Add(1.0)
	p.total++
	if p.firstObs.IsZero() {
		p.firstObs = ts
	}
	if ts.After(p.lastObs) {
		p.lastObs = ts
	}
}

// Expected devolve (média, desvio padrão) do bucket correspondente ao instante.
func (p *EntityPattern) Expected(ts time.Time) (float64, float64) {
	b := &p.buckets[BucketIndex(ts)]
	return b.Mean(), b.StdDev()
}

func (p *EntityPattern) Bucket(i int) *BucketStat { return &p.buckets[i] }

func (p *EntityPattern) TotalObservations() int { return p.total }

func (p *EntityPattern) FirstObservation() time.Time { return p.firstObs }

func (p *EntityPattern) LastObservation() time.Time { return p.lastObs }

type entityDoc struct {
	EntityID         string               `json:"entity_id"`
	Buckets          map[string]bucketDoc `json:"buckets"`
	Total            int                  `json:"total_observations"`
	FirstObservation string               `json:"first_observation,omitempty"`
	LastObservation  string               `json:"last_observation,omitempty"`
}

func (p *EntityPattern) doc() entityDoc {
	d := entityDoc{EntityID: p.EntityID, Buckets: map[string]bucketDoc{}, Total: p.total}
	for i := range p.buckets {
		if p.buckets[i].n > 0 {
			d.Buckets[itoa(i)] = p.buckets[i].doc()
		}
	}
	if !p.firstObs.IsZero() {
		d.FirstObservation = p.firstObs.UTC().Format(time.RFC3339Nano)
	}
	if !p.lastObs.IsZero() {
		d.LastObservation = p.lastObs.UTC().Format(time.RFC3339Nano)
	}
	return d
}

func entityFromDoc(d entityDoc) *EntityPattern {
	p := NewEntityPattern(d.EntityID)
	for k, bd := range d.Buckets {
		i := atoi(k)
		if i >= 0 && i < TotalBuckets {
			p.buckets[i] = bucketFromDoc(bd)
		}
	}
	p.total = d.Total
	p.firstObs = parseTime(d.FirstObservation)
	p.lastObs = parseTime(d.LastObservation)
	return p
}
