package coordinator

import (
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/correlation"
	"github.com/viniciushammett/go-behaviour-monitor/internal/metrics"
	"github.com/viniciushammett/go-behaviour-monitor/internal/ml"
	"github.com/viniciushammett/go-behaviour-monitor/internal/pattern"
)

// Nomes das seções no bucket de estado. Cada uma é carregada e degradada
// de forma independente: corrupção em uma não descarta as demais.
const (
	sectionAnalyzer    = "analyzer"
	sectionML          = "ml"
	sectionCorrelation = "correlation"
	sectionCoordinator = "coordinator"
)

// Doc é a seção "coordinator" persistida. Datetimes em UTC RFC3339.
type Doc struct {
	LastNotificationTime string            `json:"last_notification_time,omitempty"`
	LastNotificationType string            `json:"last_notification_type,omitempty"`
	LastWelfareStatus    string            `json:"last_welfare_status,omitempty"`
	HolidayMode          bool              `json:"holiday_mode"`
	SnoozeUntil          string            `json:"snooze_until,omitempty"`
	LastNotified         map[string]string `json:"last_notified,omitempty"`
}

// Setup restaura o estado persistido das quatro seções e aquece o modelo
// streaming a partir do log de eventos brutos quando necessário.
func (c *Coordinator) Setup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	var ad pattern.Doc
	if ok, err := c.db.LoadSection(sectionAnalyzer, &ad); err != nil {
		c.log.Warn().Err(err).Msg("analyzer state unreadable, relearning baseline")
	} else if ok {
		c.analyzer.Restore(ad, now)
	}

	var md ml.Doc
	if ok, err := c.db.LoadSection(sectionML, &md); err != nil {
		c.log.Warn().Err(err).Msg("ml state unreadable, relearning model")
	} else if ok {
		c.model.Restore(md)
	}
	if c.model.Enabled() && c.model.SampleCount() == 0 {
		// sem modelo restaurado: reconstrói do log de eventos brutos
		recs, err := c.db.RecentEvents(c.cfg.ReplayLimit)
		if err == nil && len(recs) > 0 {
			events := make([]ml.Event, 0, len(recs))
			for _, r := range recs {
				events = append(events, ml.Event{
					EntityID: r.EntityID, Timestamp: r.TS,
					OldState: r.OldState, NewState: r.NewState,
				})
			}
			c.model.Replay(events, now)
		}
	}

	var cd correlation.Doc
	if ok, err := c.db.LoadSection(sectionCorrelation, &cd); err != nil {
		c.log.Warn().Err(err).Msg("correlation state unreadable, relearning patterns")
	} else if ok {
		c.corr.Restore(cd)
	}

	var kd Doc
	if ok, err := c.db.LoadSection(sectionCoordinator, &kd); err != nil {
		c.log.Warn().Err(err).Msg("coordinator state unreadable, using defaults")
	} else if ok {
		c.restoreDoc(kd, now)
	}

	if c.holidayMode {
		metrics.HolidayMode.Set(1)
	}
	if c.snoozedLocked(now) {
		metrics.SnoozeActive.Set(1)
	}
	c.log.Info().
		Str("state", c.stateLocked(now)).
		Int("entities", len(c.monitored)).
		Msg("coordinator restored")
}

func (c *Coordinator) restoreDoc(d Doc, now time.Time) {
	c.lastNotificationTime = parseTime(d.LastNotificationTime)
	c.lastNotificationType = d.LastNotificationType
	c.lastWelfareStatus = d.LastWelfareStatus
	c.holidayMode = d.HolidayMode
	c.snoozeUntil = parseTime(d.SnoozeUntil)
	// soneca expirada durante o downtime morre aqui
	if !c.snoozeUntil.IsZero() && !now.Before(c.snoozeUntil) {
		c.snoozeUntil = time.Time{}
	}
	for k, v := range d.LastNotified {
		if t := parseTime(v); !t.IsZero() {
			c.lastNotified[k] = t
		}
	}
}

func (c *Coordinator) snapshotDoc() Doc {
	d := Doc{
		LastNotificationType: c.lastNotificationType,
		LastWelfareStatus:    c.lastWelfareStatus,
		HolidayMode:          c.holidayMode,
	}
	if !c.lastNotificationTime.IsZero() {
		d.LastNotificationTime = c.lastNotificationTime.UTC().Format(time.RFC3339)
	}
	if !c.snoozeUntil.IsZero() {
		d.SnoozeUntil = c.snoozeUntil.UTC().Format(time.RFC3339)
	}
	if len(c.lastNotified) > 0 {
		d.LastNotified = map[string]string{}
		for k, t := range c.lastNotified {
			d.LastNotified[k] = t.UTC().Format(time.RFC3339)
		}
	}
	return d
}

// persistAll grava as quatro seções. Falha em uma não impede as outras.
func (c *Coordinator) persistAll() {
	if err := c.db.SaveSection(sectionAnalyzer, c.analyzer.Snapshot()); err != nil {
		c.log.Error().Err(err).Msg("persist analyzer state")
	}
	if err := c.db.SaveSection(sectionML, c.model.Snapshot()); err != nil {
		c.log.Error().Err(err).Msg("persist ml state")
	}
	if err := c.db.SaveSection(sectionCorrelation, c.corr.Snapshot()); err != nil {
		c.log.Error().Err(err).Msg("persist correlation state")
	}
	c.persistCoordinator()
}

func (c *Coordinator) persistCoordinator() {
	if err := c.db.SaveSection(sectionCoordinator, c.snapshotDoc()); err != nil {
		c.log.Error().Err(err).Msg("persist coordinator state")
	}
}

// Shutdown grava todo o estado antes do desligamento.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistAll()
	c.log.Info().Msg("coordinator state saved")
}

// parseTime aceita RFC3339 e datetimes ingênuos (assumidos UTC).
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
