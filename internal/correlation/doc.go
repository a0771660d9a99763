package correlation

type edgeDoc struct {
	Trigger    string    `json:"trigger"`
	Response   string    `json:"response"`
	Latencies  []float64 `json:"latencies"`
	Expected   float64   `json:"expected_latency"`
	Confidence float64   `json:"confidence"`
}

// Doc é a seção "correlation" do documento persistido.
type Doc struct {
	Edges map[string]edgeDoc `json:"edges"`
}

func (l *Learner) Snapshot() Doc {
	d := Doc{Edges: map[string]edgeDoc{}}
	for k, e := range l.edges {
		d.Edges[k] = edgeDoc{
			Trigger:    e.Trigger,
			Response:   e.Response,
			Latencies:  append([]float64(nil), e.Latencies...),
			Expected:   e.Expected,
			Confidence: e.Confidence,
		}
	}
	return d
}

func (l *Learner) Restore(d Doc) {
	for k, ed := range d.Edges {
		if ed.Trigger == "" || ed.Response == "" {
			continue
		}
		l.edges[k] = &Edge{
			Trigger:    ed.Trigger,
			Response:   ed.Response,
			Latencies:  append([]float64(nil), ed.Latencies...),
			Expected:   ed.Expected,
			Confidence: ed.Confidence,
		}
	}
}
