package coordinator

import (
	"fmt"
	"math"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/correlation"
	"github.com/viniciushammett/go-behaviour-monitor/internal/metrics"
	"github.com/viniciushammett/go-behaviour-monitor/internal/ml"
	"github.com/viniciushammett/go-behaviour-monitor/internal/notify"
	"github.com/viniciushammett/go-behaviour-monitor/internal/pattern"
	"github.com/viniciushammett/go-behaviour-monitor/internal/store"
)

// Tick executa um ciclo de avaliação: pontua os três analisadores, funde as
// anomalias, deriva bem-estar/rotina e decide notificações. Em férias a
// avaliação inteira é suspensa; em soneca, avaliação e bem-estar ficam
// suspensos e só o retrato informativo é montado.
func (c *Coordinator) Tick() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	state := c.stateLocked(now)

	r := &Result{
		GeneratedAt: now,
		State:       state,
		Anomalies:   []Anomaly{},
		HolidayMode: c.holidayMode,
	}
	if c.snoozedLocked(now) {
		u := c.snoozeUntil
		r.SnoozeUntil = &u
	}
	if c.holidayMode {
		if !c.lastNotificationTime.IsZero() {
			r.LastNotification = &NotificationInfo{Time: c.lastNotificationTime, Type: c.lastNotificationType}
		}
		c.lastResult = r
		return r
	}

	// avaliação com isolamento: pânico em um analisador não derruba o ciclo
	var statAnoms []pattern.Anomaly
	var mlAnoms []ml.Anomaly
	var corrAnoms []correlation.Anomaly
	snoozed := c.snoozedLocked(now)
	if snoozed {
		metrics.SnoozeActive.Set(1)
	} else {
		metrics.SnoozeActive.Set(0)
	}
	if !snoozed {
		c.isolated("statistical", func() { statAnoms = c.analyzer.Evaluate(now) })
		c.isolated("ml", func() { mlAnoms = c.model.Evaluate(now) })
		c.isolated("correlation", func() { corrAnoms = c.corr.Evaluate(now) })
	}

	fused := c.fuse(statAnoms, mlAnoms, corrAnoms)
	r.Anomalies = fused
	r.AnomalyDetected = len(fused) > 0

	r.Routine = c.routine(now)
	r.Activity = c.activity(now)
	r.Confidence = c.analyzer.Confidence(now)
	r.DailyCount = c.analyzer.TotalDailyCount(now)
	r.MLStatus = c.mlInfo(now)
	r.StatTraining = training(c.analyzer.FirstObservation(), c.analyzer.LearningDays(), now)
	r.MLTraining = c.mlTraining(now)
	r.CrossPatterns = c.crossPatterns()

	if snoozed {
		// bem-estar não é avaliado nem consolidado em soneca: a transição
		// pendente sai no primeiro ciclo após a expiração
		st := c.lastWelfareStatus
		if st == "" {
			st = WelfareOK
		}
		r.Welfare = Welfare{Status: st, Reasons: []string{"welfare assessment paused while snoozed"}}
	} else {
		perEntity := c.entityStatuses(now, fused)
		r.Welfare = c.welfare(now, perEntity, fused)
		r.EntityStatus = sortedStatuses(perEntity,
			func(id string) int { return c.analyzer.DailyCount(id, now) },
			func(id string) float64 { return c.analyzer.LearningProgress(id, now) },
			func(id string) (float64, float64) {
				last := c.analyzer.Pattern(id).LastObservation()
				typ := c.analyzer.TypicalInterval(id, now)
				var since float64
				if !last.IsZero() {
					since = now.Sub(last).Seconds()
				}
				return since, typ.Seconds()
			})
	}

	metrics.WelfareLevel.Set(float64(welfareRank(r.Welfare.Status)))
	metrics.RoutineProgress.Set(r.Routine.ProgressPercent)
	metrics.LearningConfidence.Set(r.Confidence)
	metrics.MLSamples.Set(float64(c.model.SampleCount()))

	for _, a := range fused {
		metrics.Anomalies.WithLabelValues(a.EntityID, a.Source).Inc()
		if err := c.db.PutAnomaly(store.Anomaly{
			ID:          a.Timestamp.UTC().Format(time.RFC3339Nano) + "-" + randID(),
			When:        a.Timestamp,
			EntityID:    a.EntityID,
			Type:        a.Type,
			Source:      a.Source,
			Severity:    a.Severity,
			Score:       a.Score,
			Description: a.Description,
			Related:     a.Related,
		}); err != nil {
			c.log.Error().Err(err).Msg("persist anomaly")
		}
	}

	if !snoozed && state == StateActive {
		c.notifyAnomalies(now, fused)
		c.notifyWelfare(now, r.Welfare)
	}
	if !snoozed {
		c.lastWelfareStatus = r.Welfare.Status
	}
	if !c.lastNotificationTime.IsZero() {
		r.LastNotification = &NotificationInfo{Time: c.lastNotificationTime, Type: c.lastNotificationType}
	}

	c.housekeeping(now)
	c.persistAll()

	c.lastResult = r
	return r
}

// LastResult devolve o retrato da última avaliação (nil antes do primeiro Tick).
func (c *Coordinator) LastResult() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

func (c *Coordinator) isolated(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().Str("analyzer", name).Interface("panic", rec).Msg("analyzer evaluation failed")
		}
	}()
	fn()
}

// fuse converte as anomalias das três fontes no formato unificado.
func (c *Coordinator) fuse(stat []pattern.Anomaly, mls []ml.Anomaly, corrs []correlation.Anomaly) []Anomaly {
	out := []Anomaly{}
	for _, a := range stat {
		out = append(out, Anomaly{
			EntityID:    a.EntityID,
			Type:        a.Type,
			Source:      "statistical",
			Severity:    severityForZ(a.ZScore, c.analyzer.Threshold()),
			Score:       a.ZScore,
			Description: a.Description,
			Timestamp:   a.Timestamp,
		})
	}
	for _, a := range mls {
		out = append(out, Anomaly{
			EntityID:    a.EntityID,
			Type:        a.Type,
			Source:      "ml",
			Severity:    severityForScore(a.Score),
			Score:       a.Score,
			Description: a.Description,
			Timestamp:   a.Timestamp,
		})
	}
	for _, a := range corrs {
		out = append(out, Anomaly{
			EntityID:    a.ResponseEntity,
			Type:        a.Type,
			Source:      "correlation",
			Severity:    entityConcern,
			Score:       a.Confidence,
			Description: a.Description,
			Related:     []string{a.TriggerEntity},
			Timestamp:   a.Timestamp,
		})
	}
	return out
}

// severityForZ gradua pela razão z/threshold.
func severityForZ(z, threshold float64) string {
	if threshold <= 0 {
		threshold = 1
	}
	switch ratio := z / threshold; {
	case ratio >= 2.0:
		return entityAlert
	case ratio >= 1.5:
		return entityConcern
	default:
		return entityAttention
	}
}

func severityForScore(score float64) string {
	switch {
	case score >= 0.95:
		return entityConcern
	default:
		return entityAttention
	}
}

// entityStatuses combina anomalias do ciclo com o tempo desde a última
// atividade de cada entidade.
func (c *Coordinator) entityStatuses(now time.Time, fused []Anomaly) map[string]string {
	statuses := map[string]string{}
	for id := range c.monitored {
		statuses[id] = entityNormal
	}
	for _, a := range fused {
		switch a.Type {
		case pattern.AnomalyUnusualInactivity, correlation.AnomalyBrokenPattern:
			escalate(statuses, a.EntityID, entityConcern)
		default:
			escalate(statuses, a.EntityID, entityAttention)
		}
		if severityRank[a.Severity] > severityRank[statuses[a.EntityID]] {
			escalate(statuses, a.EntityID, a.Severity)
		}
	}
	// silêncio prolongado escala mesmo sem anomalia pontuada no ciclo
	for id := range c.monitored {
		typ := c.analyzer.TypicalInterval(id, now)
		last := c.analyzer.Pattern(id).LastObservation()
		if typ <= 0 || last.IsZero() {
			continue
		}
		ratio := float64(now.Sub(last)) / float64(typ)
		switch {
		case ratio >= 6:
			escalate(statuses, id, entityAlert)
		case ratio >= 3:
			escalate(statuses, id, entityConcern)
		}
	}
	return statuses
}

func (c *Coordinator) welfare(now time.Time, perEntity map[string]string, fused []Anomaly) Welfare {
	if !c.analyzer.LearningComplete(now) {
		return Welfare{Status: WelfareOK, Reasons: []string{"learning baseline, welfare assessment not yet active"}}
	}

	w := Welfare{Status: WelfareOK}
	worst := entityNormal
	for id, st := range perEntity {
		if st == entityNormal {
			w.EntitiesOK++
			continue
		}
		w.EntitiesFlag++
		if severityRank[st] > severityRank[worst] {
			worst = st
		}
		typ := c.analyzer.TypicalInterval(id, now)
		last := c.analyzer.Pattern(id).LastObservation()
		if typ > 0 && !last.IsZero() && now.Sub(last) >= 3*typ {
			w.Reasons = append(w.Reasons, fmt.Sprintf("%s silent for %s (typical gap %s)",
				id, humanDuration(now.Sub(last)), humanDuration(typ)))
		}
	}
	for _, a := range fused {
		w.Reasons = append(w.Reasons, a.Description)
	}
	w.Status = entityStatusToWelfare(worst)
	w.Recommendation = recommendationFor(w.Status)
	return w
}

func (c *Coordinator) routine(now time.Time) Routine {
	r := Routine{
		ActualCount:     c.analyzer.TotalDailyCount(now),
		ExpectedByNow:   c.analyzer.ExpectedByNow(now),
		ExpectedFullDay: c.analyzer.ExpectedFullDay(now),
	}
	if r.ExpectedByNow <= 0 {
		r.Status = "no_baseline"
		return r
	}
	r.ProgressPercent = math.Round(float64(r.ActualCount)/r.ExpectedByNow*1000) / 10
	switch {
	case r.ProgressPercent < 70:
		r.Status = "behind"
	case r.ProgressPercent > 130:
		r.Status = "ahead"
	default:
		r.Status = "on_track"
	}
	return r
}

func (c *Coordinator) activity(now time.Time) Activity {
	a := Activity{Score: c.analyzer.ActivityScore(now)}
	last := c.analyzer.LastActivity()
	if last.IsZero() {
		return a
	}
	l := last
	a.LastActivity = &l
	since := now.Sub(last)
	a.TimeSinceActivity = humanDuration(since)

	// nível de preocupação pelo maior atraso relativo entre as entidades
	for id := range c.monitored {
		typ := c.analyzer.TypicalInterval(id, now)
		el := c.analyzer.Pattern(id).LastObservation()
		if typ <= 0 || el.IsZero() {
			continue
		}
		ratio := float64(now.Sub(el)) / float64(typ)
		lvl := 0
		switch {
		case ratio >= 6:
			lvl = 3
		case ratio >= 3:
			lvl = 2
		case ratio >= 1.5:
			lvl = 1
		}
		if lvl > a.ConcernLevel {
			a.ConcernLevel = lvl
		}
	}
	return a
}

func (c *Coordinator) mlInfo(now time.Time) MLInfo {
	info := MLInfo{
		Enabled:     c.model.Enabled(),
		Status:      c.model.Status(now),
		SampleCount: c.model.SampleCount(),
	}
	if lr := c.model.LastRetrain(); !lr.IsZero() {
		t := lr
		info.LastRetrain = &t
		next := lr.Add(time.Duration(c.cfg.RetrainPeriodDays) * 24 * time.Hour)
		info.NextRetrain = &next
	}
	return info
}

func (c *Coordinator) mlTraining(now time.Time) Training {
	t := training(c.model.FirstEvent(), c.cfg.RetrainPeriodDays, now)
	if !c.model.Enabled() {
		return Training{Remaining: "disabled"}
	}
	// prontidão do modelo exige também o mínimo de amostras
	t.Complete = c.model.Ready(now)
	if t.Complete {
		t.Remaining = "complete"
	} else if t.Remaining == "complete" {
		t.Remaining = fmt.Sprintf("%d more samples needed", ml.MinSamples)
	}
	return t
}

func (c *Coordinator) crossPatterns() []CrossPattern {
	var out []CrossPattern
	for _, e := range c.corr.Qualified() {
		out = append(out, CrossPattern{
			Trigger:         e.Trigger,
			Response:        e.Response,
			ExpectedLatency: e.Expected,
			Confidence:      e.Confidence,
			Samples:         len(e.Latencies),
		})
	}
	return out
}

// notifyAnomalies envia no máximo uma notificação por (entidade, tipo) dentro
// do intervalo de dedup.
func (c *Coordinator) notifyAnomalies(now time.Time, fused []Anomaly) {
	if !c.cfg.NotificationsEnabled {
		return
	}
	for _, a := range fused {
		k := a.EntityID + "|" + a.Type
		if last, ok := c.lastNotified[k]; ok && now.Sub(last) < c.cfg.DedupInterval {
			continue
		}
		msg := notify.FormatAnomaly(a.EntityID, a.Type, a.Source, a.Description, a.Score, a.Timestamp)
		if err := c.notifier.Send(msg); err != nil {
			c.log.Error().Err(err).Str("entity", a.EntityID).Msg("send anomaly notification")
			continue
		}
		c.lastNotified[k] = now
		c.lastNotificationTime = now
		c.lastNotificationType = notificationType(a.Source)
		metrics.Notifications.WithLabelValues(c.lastNotificationType).Inc()
		c.log.Info().Str("entity", a.EntityID).Str("type", a.Type).Msg("anomaly notification sent")
	}
}

// notifyWelfare notifica transições para concern/alert, uma vez por transição.
func (c *Coordinator) notifyWelfare(now time.Time, w Welfare) {
	if !c.cfg.NotificationsEnabled {
		return
	}
	if w.Status == c.lastWelfareStatus || welfareRank(w.Status) < welfareRank(WelfareConcern) {
		return
	}
	msg := notify.FormatWelfare(w.Status, w.Reasons, now)
	if err := c.notifier.Send(msg); err != nil {
		c.log.Error().Err(err).Msg("send welfare notification")
		return
	}
	c.lastNotificationTime = now
	c.lastNotificationType = "welfare"
	metrics.Notifications.WithLabelValues("welfare").Inc()
	c.log.Info().Str("status", w.Status).Msg("welfare notification sent")
}

// notificationType reduz a fonte ao enum persistido.
func notificationType(source string) string {
	if source == "statistical" {
		return "statistical"
	}
	return "ml"
}

// housekeeping apara o log de eventos brutos; roda no máximo uma vez por dia.
func (c *Coordinator) housekeeping(now time.Time) {
	if !c.lastTrim.IsZero() && now.Sub(c.lastTrim) < 24*time.Hour {
		return
	}
	c.lastTrim = now
	keep := time.Duration(2*c.cfg.RetrainPeriodDays) * 24 * time.Hour
	n, err := c.db.TrimEvents(now.Add(-keep))
	if err != nil {
		c.log.Error().Err(err).Msg("trim raw events")
		return
	}
	if n > 0 {
		c.log.Debug().Int("removed", n).Msg("trimmed raw event log")
	}
}
