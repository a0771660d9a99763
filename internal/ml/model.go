package ml

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
)

const (
	MinSamples = 100

	StatusDisabled        = "Disabled"
	StatusLearning        = "Learning"
	StatusTrainedLearning = "Trained (learning)"
	StatusReady           = "Ready"

	AnomalyStreamingModel = "streaming_model"
)

// ScoreThresholdFor mapeia sensibilidade para o corte do score [0,1].
func ScoreThresholdFor(sensitivity string) float64 {
	switch sensitivity {
	case "low":
		return 0.9
	case "high":
		return 0.7
	default:
		return 0.8
	}
}

type Event struct {
	EntityID        string        `json:"entity_id"`
	Timestamp       time.Time     `json:"timestamp"`
	OldState        string        `json:"old_state,omitempty"`
	NewState        string        `json:"new_state,omitempty"`
	features        FeatureVector // preenchido no Record
	featuresPresent bool
}

type Anomaly struct {
	EntityID    string    `json:"entity_id"`
	Type        string    `json:"type"`
	Score       float64   `json:"score"` // 0-1, maior = mais anômalo
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type Options struct {
	Enabled        bool
	LearningDays   int
	Trees          int
	Depth          int
	WindowSize     int
	ScoreThreshold float64
	ReplayCap      int
}

func (o *Options) defaults() {
	if o.LearningDays <= 0 {
		o.LearningDays = 7
	}
	if o.Trees <= 0 {
		o.Trees = 25
	}
	if o.Depth <= 0 {
		o.Depth = 8
	}
	if o.WindowSize <= 0 {
		o.WindowSize = 100
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = 0.8
	}
	if o.ReplayCap <= 0 {
		o.ReplayCap = 1000
	}
}

// entityState é o estado streaming de uma entidade: floresta, scaler e
// contadores. Nenhum histórico bruto além do buffer de replay do Model.
type entityState struct {
	trees         []*hsTree
	scaler        scaler
	sampleCount   int
	firstEvent    time.Time
	lastRetrain   time.Time
	lastChange    time.Time
	windowRecords int
	swaps         int
}

// Model é o detector de anomalias streaming (half-space trees incrementais).
type Model struct {
	mu  sync.Mutex
	log *logger.Logger
	opt Options

	entityIdx map[string]float64 // índice normalizado, estável pela config
	states    map[string]*entityState

	replay   []Event // buffer limitado, só para warm-start e taxa recente
	lastEval time.Time
}

func NewModel(log *logger.Logger, monitored []string, opt Options) *Model {
	opt.defaults()
	ids := append([]string(nil), monitored...)
	sort.Strings(ids)
	idx := map[string]float64{}
	for i, id := range ids {
		if len(ids) > 1 {
			idx[id] = float64(i) / float64(len(ids)-1)
		} else {
			idx[id] = 0
		}
	}
	return &Model{
		log:       log,
		opt:       opt,
		entityIdx: idx,
		states:    map[string]*entityState{},
	}
}

func (m *Model) Enabled() bool { return m.opt.Enabled }

func (m *Model) state(entityID string) *entityState {
	st, ok := m.states[entityID]
	if !ok {
		// semente determinística por entidade: replay reconstrói o mesmo modelo
		h := fnv.New64a()
		_, _ = h.Write([]byte(entityID))
		rng := rand.New(rand.NewSource(int64(h.Sum64())))
		st = &entityState{trees: make([]*hsTree, 0, m.opt.Trees)}
		for i := 0; i < m.opt.Trees; i++ {
			st.trees = append(st.trees, newTree(rng, m.opt.Depth))
		}
		m.states[entityID] = st
	}
	return st
}

func (m *Model) recentRate(entityID string, ts time.Time) int {
	cutoff := ts.Add(-time.Hour)
	n := 0
	for i := len(m.replay) - 1; i >= 0; i-- {
		if m.replay[i].Timestamp.Before(cutoff) {
			break
		}
		if m.replay[i].EntityID == entityID {
			n++
		}
	}
	return n
}

// Record atualiza a floresta da entidade com um único vetor de features.
func (m *Model) Record(ev Event) {
	if !m.opt.Enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(&ev)
	m.replay = append(m.replay, ev)
	if len(m.replay) > m.opt.ReplayCap {
		m.replay = m.replay[len(m.replay)-m.opt.ReplayCap:]
	}
}

func (m *Model) record(ev *Event) {
	st := m.state(ev.EntityID)

	sinceLast := time.Duration(0)
	if !st.lastChange.IsZero() && st.lastChange.Before(ev.Timestamp) {
		sinceLast = ev.Timestamp.Sub(st.lastChange)
	}
	raw := extract(ev.Timestamp, sinceLast, m.recentRate(ev.EntityID, ev.Timestamp), m.entityIdx[ev.EntityID])
	st.scaler.Observe(raw)
	f := st.scaler.Transform(raw)
	ev.features, ev.featuresPresent = f, true

	for _, t := range st.trees {
		t.Record(f)
	}
	st.windowRecords++
	if st.windowRecords >= m.opt.WindowSize {
		for _, t := range st.trees {
			t.Swap()
		}
		st.windowRecords = 0
		st.swaps++
	}

	st.sampleCount++
	if st.firstEvent.IsZero() || ev.Timestamp.Before(st.firstEvent) {
		st.firstEvent = ev.Timestamp
	}
	st.lastChange = ev.Timestamp
}

// Score avalia um vetor de features contra a floresta da entidade.
func (m *Model) Score(entityID string, f FeatureVector) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[entityID]
	if !ok {
		return 0
	}
	return scoreForest(st.trees, f, st.swaps > 0, m.opt.WindowSize)
}

func (m *Model) readyLocked(st *entityState, now time.Time) bool {
	return st.sampleCount >= MinSamples && !st.firstEvent.IsZero() &&
		now.Sub(st.firstEvent) >= time.Duration(m.opt.LearningDays)*24*time.Hour
}

// Ready: amostras suficientes E período de aprendizado decorrido, para ao
// menos uma entidade.
func (m *Model) Ready(now time.Time) bool {
	if !m.opt.Enabled {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.states {
		if m.readyLocked(st, now) {
			return true
		}
	}
	return false
}

// Trained: limite de amostras atingido, mesmo que o período não tenha decorrido.
func (m *Model) Trained() bool {
	if !m.opt.Enabled {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainedLocked()
}

func (m *Model) trainedLocked() bool {
	for _, st := range m.states {
		if st.sampleCount >= MinSamples {
			return true
		}
	}
	return false
}

func (m *Model) Status(now time.Time) string {
	if !m.opt.Enabled {
		return StatusDisabled
	}
	if m.Ready(now) {
		return StatusReady
	}
	if m.Trained() {
		return StatusTrainedLearning
	}
	return StatusLearning
}

func (m *Model) SampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, st := range m.states {
		total += st.sampleCount
	}
	return total
}

func (m *Model) FirstEvent() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first time.Time
	for _, st := range m.states {
		if !st.firstEvent.IsZero() && (first.IsZero() || st.firstEvent.Before(first)) {
			first = st.firstEvent
		}
	}
	return first
}

func (m *Model) LastRetrain() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	for _, st := range m.states {
		if st.lastRetrain.After(last) {
			last = st.lastRetrain
		}
	}
	return last
}

// Evaluate pontua os eventos recebidos desde a última avaliação.
func (m *Model) Evaluate(now time.Time) []Anomaly {
	if !m.opt.Enabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Anomaly
	for i := len(m.replay) - 1; i >= 0 && len(out) < 10; i-- {
		ev := m.replay[i]
		if !ev.Timestamp.After(m.lastEval) {
			break
		}
		st, ok := m.states[ev.EntityID]
		if !ok || !ev.featuresPresent || !m.readyLocked(st, now) {
			continue
		}
		score := scoreForest(st.trees, ev.features, st.swaps > 0, m.opt.WindowSize)
		if score > m.opt.ScoreThreshold {
			out = append(out, Anomaly{
				EntityID:    ev.EntityID,
				Type:        AnomalyStreamingModel,
				Score:       score,
				Description: fmt.Sprintf("Unusual activity pattern detected for %s (ML score: %.3f)", ev.EntityID, score),
				Timestamp:   ev.Timestamp,
			})
		}
	}
	m.lastEval = now
	return out
}

// Replay alimenta eventos históricos em ordem temporal para aquecer o modelo
// após reinício, sem emitir notificações.
func (m *Model) Replay(events []Event, now time.Time) {
	if !m.opt.Enabled || len(events) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := append([]Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	if len(sorted) > m.opt.ReplayCap {
		sorted = sorted[len(sorted)-m.opt.ReplayCap:]
	}
	for i := range sorted {
		m.record(&sorted[i])
		m.replay = append(m.replay, sorted[i])
	}
	if len(m.replay) > m.opt.ReplayCap {
		m.replay = m.replay[len(m.replay)-m.opt.ReplayCap:]
	}
	for _, st := range m.states {
		st.lastRetrain = now
	}
	m.lastEval = now // replay nunca re-notifica
	m.log.Info().Int("events", len(sorted)).Msg("streaming model warm-start replay")
}
