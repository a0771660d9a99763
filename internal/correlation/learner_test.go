package correlation

import (
	"testing"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
)

var t0 = time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)

func newTestLearner() *Learner {
	return NewLearner(logger.New("error"), Options{})
}

// teach alimenta n pares gatilho→resposta com a latência dada, espaçados o
// bastante para a janela não cruzar pares vizinhos.
func teach(l *Learner, trigger, response string, n int, latency time.Duration) time.Time {
	ts := t0
	for i := 0; i < n; i++ {
		ts = t0.Add(time.Duration(i) * 10 * time.Minute)
		l.Record(trigger, ts)
		l.Record(response, ts.Add(latency))
	}
	return ts.Add(latency)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{nil, 0},
		{[]float64{5}, 5},
		{[]float64{9, 1, 5}, 5},
		{[]float64{1, 2, 3, 10}, 2.5},
	}
	for _, tt := range tests {
		if got := median(tt.in); got != tt.want {
			t.Fatalf("median(%v)=%v want=%v", tt.in, got, tt.want)
		}
	}
}

func TestEdgeQualification(t *testing.T) {
	few := newTestLearner()
	teach(few, "door.front", "light.hall", 9, 5*time.Second)
	if len(few.Qualified()) != 0 {
		t.Fatalf("9 co-ocorrências não deveriam qualificar")
	}

	l := newTestLearner()
	teach(l, "door.front", "light.hall", 12, 5*time.Second)
	q := l.Qualified()
	if len(q) != 1 {
		t.Fatalf("qualified=%d want=1", len(q))
	}
	e := q[0]
	if e.Trigger != "door.front" || e.Response != "light.hall" {
		t.Fatalf("aresta errada: %s→%s", e.Trigger, e.Response)
	}
	if e.Expected != 5 {
		t.Fatalf("expected latency=%v want=5", e.Expected)
	}
	if e.Confidence < 0.5 {
		t.Fatalf("confidence=%v want>=0.5", e.Confidence)
	}
}

func TestDirectionality(t *testing.T) {
	l := newTestLearner()
	teach(l, "door.front", "light.hall", 12, 5*time.Second)

	// a aresta reversa nunca foi observada nessa ordem
	if _, ok := l.edges[key("light.hall", "door.front")]; ok {
		t.Fatalf("aresta reversa não deveria existir")
	}
}

func TestBrokenPatternFlaggedOnce(t *testing.T) {
	l := newTestLearner()
	end := teach(l, "door.front", "light.hall", 15, 5*time.Second)

	// gatilho órfão bem depois do último par
	trig := end.Add(20 * time.Minute)
	l.Record("door.front", trig)

	// dentro do prazo (5s×2=10s) nada é sinalizado
	if got := l.Evaluate(trig.Add(8 * time.Second)); len(got) != 0 {
		t.Fatalf("sinalizou cedo demais: %+v", got)
	}

	// prazo estourado: exatamente uma anomalia
	got := l.Evaluate(trig.Add(30 * time.Second))
	if len(got) != 1 {
		t.Fatalf("anomalies=%d want=1", len(got))
	}
	a := got[0]
	if a.Type != AnomalyBrokenPattern || a.TriggerEntity != "door.front" || a.ResponseEntity != "light.hall" {
		t.Fatalf("anomalia inesperada: %+v", a)
	}

	// mesmo gatilho não é sinalizado de novo
	if got := l.Evaluate(trig.Add(60 * time.Second)); len(got) != 0 {
		t.Fatalf("re-sinalizou o mesmo gatilho: %+v", got)
	}
}

func TestResponseArrivalSuppressesFlag(t *testing.T) {
	l := newTestLearner()
	end := teach(l, "door.front", "light.hall", 15, 5*time.Second)

	trig := end.Add(20 * time.Minute)
	l.Record("door.front", trig)
	l.Record("light.hall", trig.Add(7*time.Second))

	if got := l.Evaluate(trig.Add(30 * time.Second)); len(got) != 0 {
		t.Fatalf("resposta chegou, não deveria sinalizar: %+v", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := newTestLearner()
	teach(l, "door.front", "light.hall", 12, 5*time.Second)

	r := newTestLearner()
	r.Restore(l.Snapshot())

	q := r.Qualified()
	if len(q) != 1 || q[0].Expected != 5 {
		t.Fatalf("restore perdeu a aresta: %+v", q)
	}
}
