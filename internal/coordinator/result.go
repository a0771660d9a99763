package coordinator

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Result é o retrato completo de uma avaliação, servido pela API.
type Result struct {
	GeneratedAt     time.Time `json:"generated_at"`
	State           string    `json:"state"`
	Anomalies       []Anomaly `json:"anomalies"`
	AnomalyDetected bool      `json:"anomaly_detected"`

	Welfare  Welfare  `json:"welfare"`
	Routine  Routine  `json:"routine"`
	Activity Activity `json:"activity"`

	Confidence    float64        `json:"learning_confidence"` // 0-100
	DailyCount    int            `json:"daily_count"`
	MLStatus      MLInfo         `json:"ml"`
	StatTraining  Training       `json:"statistical_training"`
	MLTraining    Training       `json:"ml_training"`
	CrossPatterns []CrossPattern `json:"cross_patterns,omitempty"`
	EntityStatus  []EntityStatus `json:"entity_status"`

	LastNotification *NotificationInfo `json:"last_notification,omitempty"`
	HolidayMode      bool              `json:"holiday_mode"`
	SnoozeUntil      *time.Time        `json:"snooze_until,omitempty"`
}

type Welfare struct {
	Status         string   `json:"status"` // ok|check_recommended|concern|alert
	Reasons        []string `json:"reasons,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	EntitiesOK     int      `json:"entities_ok"`
	EntitiesFlag   int      `json:"entities_flagged"`
}

type Routine struct {
	ProgressPercent float64 `json:"progress_percent"`
	Status          string  `json:"status"` // on_track|behind|ahead|no_baseline
	ActualCount     int     `json:"actual_count"`
	ExpectedByNow   float64 `json:"expected_by_now"`
	ExpectedFullDay float64 `json:"expected_full_day"`
}

type Activity struct {
	Score             float64    `json:"score"` // 0-100
	LastActivity      *time.Time `json:"last_activity,omitempty"`
	TimeSinceActivity string     `json:"time_since_activity,omitempty"`
	ConcernLevel      int        `json:"concern_level"` // 0-3
}

type MLInfo struct {
	Enabled     bool       `json:"enabled"`
	Status      string     `json:"status"`
	SampleCount int        `json:"sample_count"`
	LastRetrain *time.Time `json:"last_retrain,omitempty"`
	NextRetrain *time.Time `json:"next_retrain,omitempty"`
}

type Training struct {
	Complete         bool       `json:"complete"`
	DaysElapsed      float64    `json:"days_elapsed"`
	TotalDays        int        `json:"total_days"`
	Remaining        string     `json:"remaining"` // "2d 5h" ou "complete"
	FirstObservation *time.Time `json:"first_observation,omitempty"`
}

type CrossPattern struct {
	Trigger         string  `json:"trigger"`
	Response        string  `json:"response"`
	ExpectedLatency float64 `json:"expected_latency_seconds"`
	Confidence      float64 `json:"confidence"`
	Samples         int     `json:"samples"`
}

type EntityStatus struct {
	EntityID          string  `json:"entity_id"`
	Status            string  `json:"status"` // normal|attention|concern|alert
	DailyCount        int     `json:"daily_count"`
	LearningProgress  float64 `json:"learning_progress"` // 0-1
	TimeSinceActivity float64 `json:"time_since_activity_seconds,omitempty"`
	TypicalInterval   float64 `json:"typical_interval_seconds,omitempty"`
}

type NotificationInfo struct {
	Time time.Time `json:"time"`
	Type string    `json:"type"` // statistical|ml|welfare
}

// humanDuration formata durações no estilo "2d 5h" / "3h 12m" / "45m".
func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

func training(first time.Time, totalDays int, now time.Time) Training {
	t := Training{TotalDays: totalDays, Remaining: "not started"}
	if first.IsZero() {
		return t
	}
	f := first
	t.FirstObservation = &f
	t.DaysElapsed = math.Min(float64(totalDays), now.Sub(first).Hours()/24)
	rem := time.Duration(totalDays)*24*time.Hour - now.Sub(first)
	if rem <= 0 {
		t.Complete = true
		t.Remaining = "complete"
	} else {
		t.Remaining = humanDuration(rem)
	}
	return t
}

func welfareRank(status string) int {
	switch status {
	case WelfareAlert:
		return 3
	case WelfareConcern:
		return 2
	case WelfareCheck:
		return 1
	default:
		return 0
	}
}

// entityStatusToWelfare mapeia o pior status por entidade no agregado.
func entityStatusToWelfare(worst string) string {
	switch worst {
	case entityAlert:
		return WelfareAlert
	case entityConcern:
		return WelfareConcern
	case entityAttention:
		return WelfareCheck
	default:
		return WelfareOK
	}
}

func recommendationFor(status string) string {
	switch status {
	case WelfareAlert:
		return "Immediate check-in recommended: activity is far outside the learned routine."
	case WelfareConcern:
		return "Consider reaching out: several signals deviate from the usual pattern."
	case WelfareCheck:
		return "Minor deviation from routine; a casual check-in may be reassuring."
	default:
		return ""
	}
}

func escalate(cur map[string]string, entityID, status string) {
	if severityRank[status] > severityRank[cur[entityID]] {
		cur[entityID] = status
	}
}

func sortedStatuses(m map[string]string, daily func(string) int, progress func(string) float64,
	since func(string) (float64, float64)) []EntityStatus {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]EntityStatus, 0, len(ids))
	for _, id := range ids {
		s, typ := since(id)
		out = append(out, EntityStatus{
			EntityID:          id,
			Status:            m[id],
			DailyCount:        daily(id),
			LearningProgress:  progress(id),
			TimeSinceActivity: s,
			TypicalInterval:   typ,
		})
	}
	return out
}
