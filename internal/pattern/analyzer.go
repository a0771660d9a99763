package pattern

import (
	"errors"
	"math"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
)

type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Threshold em desvios padrão para o Z-score.
func (s Sensitivity) Threshold() float64 {
	switch s {
	case SensitivityLow:
		return 3.0
	case SensitivityHigh:
		return 1.0
	default:
		return 2.0
	}
}

var ErrUnmonitoredEntity = errors.New("entity not monitored")

const (
	AnomalyUnusualActivity   = "unusual_activity"
	AnomalyUnusualInactivity = "unusual_inactivity"
)

// zInfinite marca rajada num bucket de variância zero. Finito em vez de
// math.Inf(1) porque o valor atravessa json.Marshal ao ser persistido.
const zInfinite = math.MaxFloat64

type Anomaly struct {
	EntityID    string    `json:"entity_id"`
	Type        string    `json:"type"`
	ZScore      float64   `json:"z_score"`
	Expected    float64   `json:"expected_mean"`
	ExpectedStd float64   `json:"expected_std"`
	Actual      float64   `json:"actual_value"`
	Timestamp   time.Time `json:"timestamp"`
	TimeSlot    string    `json:"time_slot"`
	Description string    `json:"description"`
}

// Analyzer aprende a linha de base estatística por entidade e detecta desvios.
type Analyzer struct {
	log          *logger.Logger
	loc          *time.Location
	threshold    float64
	learningDays int
	monitored    map[string]bool

	patterns map[string]*EntityPattern

	dailyCounts map[string]int
	dailyDate   string // "2006-01-02" na tz configurada, "" = nenhum dia corrente

	curInterval int
	curDay      int
	curActivity map[string]int
}

func NewAnalyzer(log *logger.Logger, monitored []string, sensitivity Sensitivity, learningDays int, loc *time.Location) *Analyzer {
	if loc == nil {
		loc = time.UTC
	}
	if learningDays <= 0 {
		learningDays = 7
	}
	m := map[string]bool{}
	for _, id := range monitored {
		m[id] = true
	}
	return &Analyzer{
		log:          log,
		loc:          loc,
		threshold:    sensitivity.Threshold(),
		learningDays: learningDays,
		monitored:    m,
		patterns:     map[string]*EntityPattern{},
		dailyCounts:  map[string]int{},
		curInterval:  -1,
		curDay:       -1,
		curActivity:  map[string]int{},
	}
}

func (a *Analyzer) Threshold() float64 { return a.threshold }

func (a *Analyzer) Pattern(entityID string) *EntityPattern {
	p, ok := a.patterns[entityID]
	if !ok {
		p = NewEntityPattern(entityID)
		a.patterns[entityID] = p
	}
	return p
}

func (a *Analyzer) Entities() []string {
	out := make([]string, 0, len(a.patterns))
	for id := range a.patterns {
		out = append(out, id)
	}
	return out
}

func (a *Analyzer) dateKey(ts time.Time) string { return ts.In(a.loc).Format("2006-01-02") }

// rollover zera os contadores diários quando a data (na tz configurada) muda.
// Transição explícita: nunca deriva silenciosamente.
func (a *Analyzer) rollover(ts time.Time) {
	key := a.dateKey(ts)
	if a.dailyDate == key {
		return
	}
	if a.dailyDate != "" {
		a.log.Debug().Str("from", a.dailyDate).Str("to", key).Msg("daily counter rollover")
	}
	a.dailyCounts = map[string]int{}
	a.dailyDate = key
}

// Record registra uma mudança de estado no bucket do instante.
func (a *Analyzer) Record(entityID string, ts time.Time) error {
	if !a.monitored[entityID] {
		return ErrUnmonitoredEntity
	}
	a.Pattern(entityID).Record(ts)

	a.rollover(ts)
	a.dailyCounts[entityID]++

	// atividade do intervalo corrente, usada pelo Evaluate
	interval, day := IntervalIndex(ts), WeekdayIndex(ts)
	if interval != a.curInterval || day != a.curDay {
		a.curInterval, a.curDay = interval, day
		a.curActivity = map[string]int{}
	}
	a.curActivity[entityID]++
	return nil
}

// CurrentIntervalActivity devolve as contagens do intervalo de 15min corrente.
func (a *Analyzer) CurrentIntervalActivity(now time.Time) map[string]int {
	if IntervalIndex(now) != a.curInterval || WeekdayIndex(now) != a.curDay {
		return map[string]int{}
	}
	out := make(map[string]int, len(a.curActivity))
	for k, v := range a.curActivity {
		out[k] = v
	}
	return out
}

func (a *Analyzer) DailyCount(entityID string, now time.Time) int {
	if a.dailyDate != a.dateKey(now) {
		return 0
	}
	return a.dailyCounts[entityID]
}

func (a *Analyzer) TotalDailyCount(now time.Time) int {
	if a.dailyDate != a.dateKey(now) {
		return 0
	}
	total := 0
	for _, v := range a.dailyCounts {
		total += v
	}
	return total
}

// LearningProgress por entidade, em [0,1].
func (a *Analyzer) LearningProgress(entityID string, now time.Time) float64 {
	p, ok := a.patterns[entityID]
	if !ok || p.firstObs.IsZero() {
		return 0
	}
	elapsed := now.Sub(p.firstObs).Hours() / 24
	return math.Min(1, elapsed/float64(a.learningDays))
}

func (a *Analyzer) entityLearningComplete(p *EntityPattern, now time.Time) bool {
	return !p.firstObs.IsZero() &&
		now.Sub(p.firstObs) >= time.Duration(a.learningDays)*24*time.Hour
}

// Confidence global (0-100), baseada na observação mais antiga.
func (a *Analyzer) Confidence(now time.Time) float64 {
	first := a.FirstObservation()
	if first.IsZero() {
		return 0
	}
	days := now.Sub(first).Hours() / 24
	return math.Min(100, days/float64(a.learningDays)*100)
}

func (a *Analyzer) LearningComplete(now time.Time) bool { return a.Confidence(now) >= 100 }

func (a *Analyzer) LearningDays() int { return a.learningDays }

func (a *Analyzer) FirstObservation() time.Time {
	var first time.Time
	for _, p := range a.patterns {
		if !p.firstObs.IsZero() && (first.IsZero() || p.firstObs.Before(first)) {
			first = p.firstObs
		}
	}
	return first
}

func (a *Analyzer) LastActivity() time.Time {
	var last time.Time
	for _, p := range a.patterns {
		if p.lastObs.After(last) {
			last = p.lastObs
		}
	}
	return last
}

// EvaluateEntity compara a atividade do intervalo corrente com o bucket aprendido.
// Devolve nil quando não há anomalia ou dados insuficientes.
func (a *Analyzer) EvaluateEntity(entityID string, now time.Time) *Anomaly {
	p, ok := a.patterns[entityID]
	if !ok || !a.entityLearningComplete(p, now) {
		return nil
	}
	mean, std := p.Expected(now)
	actual := float64(a.CurrentIntervalActivity(now)[entityID])

	// bucket nunca visto ativo: dados insuficientes, não anomalia
	if mean == 0 && std == 0 {
		return nil
	}

	var z float64
	switch {
	case std > 0:
		z = math.Abs(actual-mean) / std
	case actual != mean:
		// variância zero: rajada pesa infinito, silêncio fica logo acima do limiar
		if actual > 0 {
			z = zInfinite
		} else {
			z = a.threshold + 1
		}
	default:
		z = 0
	}
	if z <= a.threshold {
		return nil
	}

	slot := TimeSlot(now)
	typ, verb := AnomalyUnusualActivity, "activity"
	if actual < mean {
		typ, verb = AnomalyUnusualInactivity, "inactivity"
	}
	return &Anomaly{
		EntityID:    entityID,
		Type:        typ,
		ZScore:      z,
		Expected:    mean,
		ExpectedStd: std,
		Actual:      actual,
		Timestamp:   now,
		TimeSlot:    slot,
		Description: describe(verb, entityID, slot, mean, actual),
	}
}

// Evaluate percorre todas as entidades com padrão aprendido.
func (a *Analyzer) Evaluate(now time.Time) []Anomaly {
	var out []Anomaly
	for id := range a.patterns {
		if an := a.EvaluateEntity(id, now); an != nil {
			out = append(out, *an)
		}
	}
	return out
}

// ActivityScore (0-100): razão atual/esperado agregada.
func (a *Analyzer) ActivityScore(now time.Time) float64 {
	if len(a.patterns) == 0 {
		return 0
	}
	var expected, actual float64
	for id, p := range a.patterns {
		mean, _ := p.Expected(now)
		if mean > 0 {
			expected += mean
			actual += math.Min(float64(a.DailyCount(id, now))/IntervalsPerDay, mean*2)
		}
	}
	if expected == 0 {
		return 50 // sem linha de base, neutro
	}
	return math.Min(100, actual/expected*100)
}

// ExpectedByNow soma as médias dos buckets do dia corrente até o intervalo atual.
func (a *Analyzer) ExpectedByNow(now time.Time) float64 {
	day := WeekdayIndex(now)
	limit := IntervalIndex(now)
	var total float64
	for _, p := range a.patterns {
		for i := 0; i <= limit; i++ {
			total += p.buckets[day*IntervalsPerDay+i].Mean()
		}
	}
	return total
}

// ExpectedFullDay soma as médias de todos os buckets do dia corrente.
func (a *Analyzer) ExpectedFullDay(now time.Time) float64 {
	day := WeekdayIndex(now)
	var total float64
	for _, p := range a.patterns {
		for i := 0; i < IntervalsPerDay; i++ {
			total += p.buckets[day*IntervalsPerDay+i].Mean()
		}
	}
	return total
}

// TypicalInterval estima o intervalo típico entre eventos da entidade.
func (a *Analyzer) TypicalInterval(entityID string, now time.Time) time.Duration {
	p, ok := a.patterns[entityID]
	if !ok || p.total == 0 || p.firstObs.IsZero() {
		return 0
	}
	days := math.Max(1, now.Sub(p.firstObs).Hours()/24)
	perDay := float64(p.total) / days
	if perDay <= 0 {
		return 0
	}
	return time.Duration(86400/perDay) * time.Second
}
