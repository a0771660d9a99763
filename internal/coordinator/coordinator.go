package coordinator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/correlation"
	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
	"github.com/viniciushammett/go-behaviour-monitor/internal/metrics"
	"github.com/viniciushammett/go-behaviour-monitor/internal/ml"
	"github.com/viniciushammett/go-behaviour-monitor/internal/notify"
	"github.com/viniciushammett/go-behaviour-monitor/internal/pattern"
	"github.com/viniciushammett/go-behaviour-monitor/internal/store"
)

// Estados do coordenador.
const (
	StateLearning = "LEARNING"
	StateActive   = "ACTIVE"
	StateHoliday  = "HOLIDAY"
	StateSnoozed  = "SNOOZED"
)

// Status de bem-estar agregado.
const (
	WelfareOK      = "ok"
	WelfareCheck   = "check_recommended"
	WelfareConcern = "concern"
	WelfareAlert   = "alert"
)

// Status por entidade, do menos ao mais severo.
const (
	entityNormal    = "normal"
	entityAttention = "attention"
	entityConcern   = "concern"
	entityAlert     = "alert"
)

var severityRank = map[string]int{
	entityNormal: 0, entityAttention: 1, entityConcern: 2, entityAlert: 3,
}

var snoozeDurations = map[string]time.Duration{
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"8h":  8 * time.Hour,
	"24h": 24 * time.Hour,
}

// Event é a mudança de estado entregue pelo runtime externo.
type Event struct {
	EntityID        string    `json:"entity_id"`
	OldState        string    `json:"old_state"`
	NewState        string    `json:"new_state"`
	Timestamp       time.Time `json:"timestamp"`
	AttributeChange bool      `json:"attribute_change"`
}

// Anomaly é o resultado fundido das três fontes.
type Anomaly struct {
	EntityID    string    `json:"entity_id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"` // statistical|ml|correlation
	Severity    string    `json:"severity"`
	Score       float64   `json:"score"`
	Description string    `json:"description"`
	Related     []string  `json:"related,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Config struct {
	MonitoredEntities    []string
	Sensitivity          pattern.Sensitivity
	TrackAttributes      bool
	NotificationsEnabled bool
	DedupInterval        time.Duration
	RetrainPeriodDays    int
	ReplayLimit          int
	Location             *time.Location
}

func (c *Config) defaults() {
	if c.DedupInterval <= 0 {
		c.DedupInterval = time.Hour
	}
	if c.RetrainPeriodDays <= 0 {
		c.RetrainPeriodDays = 14
	}
	if c.ReplayLimit <= 0 {
		c.ReplayLimit = 1000
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Coordinator funde os três analisadores, aplica os modos férias/soneca e é
// dono de todo o estado persistido. Processamento estritamente serializado:
// um evento é tratado por inteiro antes do próximo.
type Coordinator struct {
	mu       sync.Mutex
	log      *logger.Logger
	db       *store.Store
	analyzer *pattern.Analyzer
	model    *ml.Model
	corr     *correlation.Learner
	notifier *notify.Slack
	cfg      Config

	monitored map[string]bool
	clock     func() time.Time

	holidayMode bool
	snoozeUntil time.Time

	lastNotified         map[string]time.Time // entidade|tipo → último envio
	lastNotificationTime time.Time
	lastNotificationType string
	lastWelfareStatus    string
	lastTrim             time.Time

	lastResult *Result
}

func New(log *logger.Logger, db *store.Store, analyzer *pattern.Analyzer, model *ml.Model,
	corr *correlation.Learner, notifier *notify.Slack, cfg Config) *Coordinator {
	cfg.defaults()
	mon := map[string]bool{}
	for _, id := range cfg.MonitoredEntities {
		mon[id] = true
	}
	return &Coordinator{
		log:          log,
		db:           db,
		analyzer:     analyzer,
		model:        model,
		corr:         corr,
		notifier:     notifier,
		cfg:          cfg,
		monitored:    mon,
		clock:        time.Now,
		lastNotified: map[string]time.Time{},
	}
}

// State devolve o estado corrente da máquina.
func (c *Coordinator) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(c.clock())
}

func (c *Coordinator) stateLocked(now time.Time) string {
	switch {
	case c.holidayMode:
		return StateHoliday
	case c.snoozedLocked(now):
		return StateSnoozed
	case c.analyzer.LearningComplete(now):
		return StateActive
	default:
		return StateLearning
	}
}

// HandleEvent processa uma mudança de estado, respeitando férias/soneca.
func (c *Coordinator) HandleEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}

	if c.holidayMode {
		metrics.EventsSuppressed.WithLabelValues("holiday").Inc()
		return
	}
	if !c.monitored[ev.EntityID] {
		c.log.Debug().Str("entity", ev.EntityID).Msg("ignoring unmonitored entity")
		metrics.EventsSuppressed.WithLabelValues("unmonitored").Inc()
		return
	}
	if ev.AttributeChange && !c.cfg.TrackAttributes {
		return
	}
	if !ev.AttributeChange && ev.OldState == ev.NewState {
		return
	}

	if err := c.db.PutEvent(store.EventRecord{
		TS: ev.Timestamp, EntityID: ev.EntityID,
		OldState: ev.OldState, NewState: ev.NewState, AttributeChange: ev.AttributeChange,
	}); err != nil {
		c.log.Error().Err(err).Msg("persist raw event")
	}

	// modelo streaming registra sempre (histórico), mesmo em soneca
	c.model.Record(ml.Event{
		EntityID: ev.EntityID, Timestamp: ev.Timestamp,
		OldState: ev.OldState, NewState: ev.NewState,
	})

	if c.snoozedLocked(now) {
		metrics.EventsSuppressed.WithLabelValues("snooze").Inc()
		return
	}

	if err := c.analyzer.Record(ev.EntityID, ev.Timestamp); err != nil {
		c.log.Debug().Err(err).Str("entity", ev.EntityID).Msg("statistical record skipped")
	}
	c.corr.Record(ev.EntityID, ev.Timestamp)

	metrics.EventsIngested.WithLabelValues(ev.EntityID).Inc()
	c.log.Debug().Str("entity", ev.EntityID).
		Str("old", ev.OldState).Str("new", ev.NewState).Msg("recorded state change")
}

// -------- férias / soneca --------

func (c *Coordinator) EnableHolidayMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidayMode = true
	metrics.HolidayMode.Set(1)
	c.persistCoordinator()
	c.log.Info().Msg("holiday mode enabled")
}

func (c *Coordinator) DisableHolidayMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidayMode = false
	metrics.HolidayMode.Set(0)
	c.persistCoordinator()
	c.log.Info().Msg("holiday mode disabled")
}

func (c *Coordinator) HolidayMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holidayMode
}

func (c *Coordinator) Snooze(durationKey string) error {
	if durationKey == "off" {
		c.ClearSnooze()
		return nil
	}
	d, ok := snoozeDurations[durationKey]
	if !ok {
		return fmt.Errorf("unknown snooze duration %q", durationKey)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snoozeUntil = c.clock().Add(d)
	metrics.SnoozeActive.Set(1)
	c.persistCoordinator()
	c.log.Info().Time("until", c.snoozeUntil).Msg("notifications snoozed")
	return nil
}

func (c *Coordinator) ClearSnooze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snoozeUntil = time.Time{}
	metrics.SnoozeActive.Set(0)
	c.persistCoordinator()
	c.log.Info().Msg("snooze cleared")
}

// IsSnoozed expira preguiçosamente: compara agora com snooze_until a cada
// consulta, sem depender de timer agendado.
func (c *Coordinator) IsSnoozed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snoozedLocked(c.clock())
}

func (c *Coordinator) snoozedLocked(now time.Time) bool {
	return !c.snoozeUntil.IsZero() && now.Before(c.snoozeUntil)
}

func (c *Coordinator) SnoozeUntil() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snoozedLocked(c.clock()) {
		return time.Time{}, false
	}
	return c.snoozeUntil, true
}

func randID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
