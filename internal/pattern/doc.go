package pattern

import (
	"fmt"
	"strconv"
	"time"
)

// Doc é o documento persistido do analisador. Campos novos (daily_counts,
// daily_count_date) são opcionais: documentos antigos carregam com defaults.
type Doc struct {
	Patterns             map[string]entityDoc `json:"patterns"`
	SensitivityThreshold float64              `json:"sensitivity_threshold"`
	LearningPeriodDays   int                  `json:"learning_period_days"`
	DailyCounts          map[string]int       `json:"daily_counts,omitempty"`
	DailyCountDate       string               `json:"daily_count_date,omitempty"`
}

func (a *Analyzer) Snapshot() Doc {
	d := Doc{
		Patterns:             map[string]entityDoc{},
		SensitivityThreshold: a.threshold,
		LearningPeriodDays:   a.learningDays,
	}
	for id, p := range a.patterns {
		d.Patterns[id] = p.doc()
	}
	if a.dailyDate != "" {
		d.DailyCounts = map[string]int{}
		for id, n := range a.dailyCounts {
			d.DailyCounts[id] = n
		}
		// meia-noite do dia corrente na tz configurada, gravada em UTC
		if t, err := time.ParseInLocation("2006-01-02", a.dailyDate, a.loc); err == nil {
			d.DailyCountDate = t.UTC().Format(time.RFC3339)
		}
	}
	return d
}

// Restore aplica um documento persistido. Contadores diários só sobrevivem
// quando a data gravada ainda é "hoje" na tz configurada; caso contrário são
// zerados (restaurar contagem de outro dia seria um defeito).
func (a *Analyzer) Restore(d Doc, now time.Time) {
	for id, ed := range d.Patterns {
		if ed.EntityID == "" {
			ed.EntityID = id
		}
		a.patterns[id] = entityFromDoc(ed)
	}

	a.dailyCounts = map[string]int{}
	a.dailyDate = ""
	if d.DailyCountDate != "" && len(d.DailyCounts) > 0 {
		stored := parseTime(d.DailyCountDate)
		if !stored.IsZero() && a.dateKey(stored) == a.dateKey(now) {
			a.dailyDate = a.dateKey(now)
			for id, n := range d.DailyCounts {
				a.dailyCounts[id] = n
			}
		} else if !stored.IsZero() {
			a.log.Info().Str("stored", d.DailyCountDate).Msg("stale daily counters discarded on restore")
		}
	}
}

func itoa(i int) string { return strconv.Itoa(i) }

func atoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return i
}

// parseTime aceita RFC3339 e datetimes ingênuos (assumidos UTC).
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func describe(verb, entityID, slot string, mean, actual float64) string {
	return fmt.Sprintf("Unusual %s for %s on %s: expected ~%.1f state changes, got %.0f",
		verb, entityID, slot, mean, actual)
}
