package correlation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
	"github.com/viniciushammett/go-behaviour-monitor/internal/util"
)

const AnomalyBrokenPattern = "broken_pattern"

// Edge acumula latências gatilho→resposta observadas dentro da janela.
// A→B e B→A são arestas distintas; só a ordem observada é registrada.
type Edge struct {
	Trigger    string
	Response   string
	Latencies  []float64 // segundos; reservatório limitado, mais antigo sai
	Expected   float64   // mediana das latências
	Confidence float64

	lastFlagged time.Time // último gatilho já sinalizado como quebrado
}

type Anomaly struct {
	TriggerEntity   string    `json:"trigger_entity"`
	ResponseEntity  string    `json:"response_entity"`
	Type            string    `json:"type"`
	ExpectedLatency float64   `json:"expected_latency_seconds"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
	Description     string    `json:"description"`
}

type Options struct {
	Window           time.Duration
	ToleranceFactor  float64
	MinCoOccurrences int
	MaxSamples       int
	MinConfidence    float64
}

func (o *Options) defaults() {
	if o.Window <= 0 {
		o.Window = 5 * time.Minute
	}
	if o.ToleranceFactor <= 0 {
		o.ToleranceFactor = 2.0
	}
	if o.MinCoOccurrences <= 0 {
		o.MinCoOccurrences = 10
	}
	if o.MaxSamples <= 0 {
		o.MaxSamples = 50
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.5
	}
}

// Learner aprende pares gatilho→resposta e detecta padrões quebrados
// (gatilho disparou, resposta esperada não veio no prazo).
type Learner struct {
	log *logger.Logger
	opt Options

	events util.Sliding
	edges  map[string]*Edge
}

func NewLearner(log *logger.Logger, opt Options) *Learner {
	opt.defaults()
	return &Learner{log: log, opt: opt, edges: map[string]*Edge{}}
}

func key(trigger, response string) string { return trigger + "|" + response }

// Record adiciona o evento ao log rolante e aprende pares com os eventos
// recentes das demais entidades.
func (l *Learner) Record(entityID string, ts time.Time) {
	l.events.Prune(ts, l.opt.Window)
	for _, p := range l.events.Items() {
		if p.Entity == entityID || p.TS.After(ts) {
			continue
		}
		l.LearnPair(p.Entity, entityID, ts.Sub(p.TS).Seconds())
	}
	l.events.Add(util.Point{TS: ts, Entity: entityID}, l.opt.Window)
}

// LearnPair atualiza a aresta com uma nova latência observada.
func (l *Learner) LearnPair(trigger, response string, latencySeconds float64) {
	k := key(trigger, response)
	e, ok := l.edges[k]
	if !ok {
		e = &Edge{Trigger: trigger, Response: response}
		l.edges[k] = e
	}
	e.Latencies = append(e.Latencies, latencySeconds)
	if len(e.Latencies) > l.opt.MaxSamples {
		e.Latencies = e.Latencies[1:]
	}
	e.Expected = median(e.Latencies)
	e.Confidence = l.confidence(e)
}

// confidence: consistência de ordem × fator logarítmico de contagem.
func (l *Learner) confidence(e *Edge) float64 {
	n := len(e.Latencies)
	rev := 0
	if r, ok := l.edges[key(e.Response, e.Trigger)]; ok {
		rev = len(r.Latencies)
	}
	total := n + rev
	if total == 0 {
		return 0
	}
	consistency := float64(n) / float64(total)
	countFactor := math.Min(1, math.Log1p(float64(n))/5.0)
	return consistency * countFactor
}

// Qualified devolve as arestas com co-ocorrências suficientes.
func (l *Learner) Qualified() []*Edge {
	var out []*Edge
	for _, e := range l.edges {
		if len(e.Latencies) >= l.opt.MinCoOccurrences {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Evaluate verifica, para cada aresta qualificada, se o último gatilho ficou
// sem resposta dentro de expected×tolerance. Cada gatilho é sinalizado no
// máximo uma vez.
func (l *Learner) Evaluate(now time.Time) []Anomaly {
	l.events.Prune(now, l.opt.Window)

	var out []Anomaly
	for _, e := range l.Qualified() {
		if e.Confidence < l.opt.MinConfidence {
			continue
		}
		trig, ok := l.events.Last(e.Trigger)
		if !ok || trig.TS.Equal(e.lastFlagged) {
			continue
		}
		deadline := time.Duration(e.Expected * l.opt.ToleranceFactor * float64(time.Second))
		if now.Sub(trig.TS) <= deadline {
			continue // resposta ainda pode chegar
		}
		if resp, ok := l.events.Last(e.Response); ok && !resp.TS.Before(trig.TS) {
			continue
		}
		e.lastFlagged = trig.TS
		out = append(out, Anomaly{
			TriggerEntity:   e.Trigger,
			ResponseEntity:  e.Response,
			Type:            AnomalyBrokenPattern,
			ExpectedLatency: e.Expected,
			Confidence:      e.Confidence,
			Timestamp:       now,
			Description: fmt.Sprintf(
				"Expected %s to change after %s (usually within %.0fs, confidence: %.2f)",
				e.Response, e.Trigger, e.Expected, e.Confidence),
		})
	}
	return out
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
