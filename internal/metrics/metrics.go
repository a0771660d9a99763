package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bm_events_ingested_total", Help: "Eventos de mudança de estado recebidos"},
		[]string{"entity"},
	)
	EventsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bm_events_suppressed_total", Help: "Eventos descartados (férias/soneca/não monitorado)"},
		[]string{"reason"},
	)
	Anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bm_anomalies_total", Help: "Anomalias detectadas"},
		[]string{"entity", "source"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bm_notifications_total", Help: "Notificações emitidas"},
		[]string{"type"},
	)
	WelfareLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "bm_welfare_level", Help: "Status de bem-estar (0=ok 1=check 2=concern 3=alert)"},
	)
	RoutineProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "bm_routine_progress_percent", Help: "Progresso da rotina diária"},
	)
	LearningConfidence = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "bm_learning_confidence_percent", Help: "Confiança da linha de base"},
	)
	MLSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "bm_ml_samples", Help: "Amostras acumuladas pelo modelo streaming"},
	)
	HolidayMode = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "bm_holiday_mode", Help: "Modo férias ativo"},
	)
	SnoozeActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "bm_snooze_active", Help: "Soneca de notificações ativa"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		EventsIngested, EventsSuppressed, Anomalies, Notifications,
		WelfareLevel, RoutineProgress, LearningConfidence, MLSamples,
		HolidayMode, SnoozeActive,
	)
}
func Handler() http.Handler { return promhttp.Handler() }
