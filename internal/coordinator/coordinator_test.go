package coordinator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/viniciushammett/go-behaviour-monitor/internal/correlation"
	"github.com/viniciushammett/go-behaviour-monitor/internal/logger"
	"github.com/viniciushammett/go-behaviour-monitor/internal/ml"
	"github.com/viniciushammett/go-behaviour-monitor/internal/notify"
	"github.com/viniciushammett/go-behaviour-monitor/internal/pattern"
	"github.com/viniciushammett/go-behaviour-monitor/internal/store"
)

// segunda-feira 09:00 UTC
var monday = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

var testEntities = []string{"door.front", "light.hall"}

func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	db, err := store.Open(path)
	require.NoError(t, err)
	return db
}

// newCoordinator monta um coordenador com relógio controlado pelo teste.
func newCoordinator(db *store.Store, mlEnabled bool, now *time.Time) *Coordinator {
	log := logger.New("error")
	an := pattern.NewAnalyzer(log, testEntities, pattern.SensitivityHigh, 7, time.UTC)
	mdl := ml.NewModel(log, testEntities, ml.Options{Enabled: mlEnabled})
	corr := correlation.NewLearner(log, correlation.Options{})
	c := New(log, db, an, mdl, corr, notify.NewSlack(false, ""), Config{
		MonitoredEntities:    testEntities,
		Sensitivity:          pattern.SensitivityHigh,
		NotificationsEnabled: true,
		DedupInterval:        time.Hour,
	})
	c.clock = func() time.Time { return *now }
	return c
}

func event(id string, ts time.Time) Event {
	return Event{EntityID: id, OldState: "off", NewState: "on", Timestamp: ts}
}

func TestStateMachineLearningToActive(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	require.Equal(t, StateLearning, c.State())

	c.HandleEvent(event("door.front", monday.AddDate(0, 0, -8)))
	require.Equal(t, StateActive, c.State())
}

func TestHolidaySuppressesEverything(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, true, &now)

	c.EnableHolidayMode()
	require.Equal(t, StateHoliday, c.State())

	for i := 0; i < 10; i++ {
		c.HandleEvent(event("door.front", monday.Add(time.Duration(i)*time.Minute)))
	}
	require.Zero(t, c.analyzer.Pattern("door.front").TotalObservations())
	require.Zero(t, c.model.SampleCount())
	evs, err := db.RecentEvents(0)
	require.NoError(t, err)
	require.Empty(t, evs)

	res := c.Tick()
	require.Equal(t, StateHoliday, res.State)
	require.Empty(t, res.Anomalies)
	require.True(t, res.HolidayMode)

	c.DisableHolidayMode()
	require.Equal(t, StateLearning, c.State())

	// com férias desligadas os mesmos eventos voltam a contar em tudo
	for i := 0; i < 10; i++ {
		c.HandleEvent(event("door.front", monday.Add(time.Duration(i)*time.Minute)))
	}
	require.Equal(t, 10, c.analyzer.Pattern("door.front").TotalObservations())
	require.Equal(t, 10, c.analyzer.TotalDailyCount(monday))
	require.Equal(t, 10, c.model.SampleCount())
	evs, err = db.RecentEvents(0)
	require.NoError(t, err)
	require.Len(t, evs, 10)
}

func TestSnoozeRecordsMLOnly(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, true, &now)

	require.NoError(t, c.Snooze("1h"))
	require.True(t, c.IsSnoozed())

	c.HandleEvent(event("door.front", monday))

	// estatístico e correlação ficam de fora; modelo streaming e log bruto não
	require.Zero(t, c.analyzer.Pattern("door.front").TotalObservations())
	require.Equal(t, 1, c.model.SampleCount())
	evs, err := db.RecentEvents(0)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	res := c.Tick()
	require.Equal(t, StateSnoozed, res.State)
	require.Empty(t, res.Anomalies)
	require.NotNil(t, res.SnoozeUntil)

	// expiração preguiçosa
	now = monday.Add(2 * time.Hour)
	require.False(t, c.IsSnoozed())

	require.Error(t, c.Snooze("banana"))
}

func TestClearSnooze(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	require.NoError(t, c.Snooze("8h"))
	require.True(t, c.IsSnoozed())
	c.ClearSnooze()
	require.False(t, c.IsSnoozed())
}

func TestUnmonitoredEntityIgnored(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, true, &now)

	c.HandleEvent(event("sensor.unknown", monday))
	require.Zero(t, c.model.SampleCount())
	evs, err := db.RecentEvents(0)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestSameStateChangeIgnored(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	c.HandleEvent(Event{EntityID: "door.front", OldState: "on", NewState: "on", Timestamp: monday})
	require.Zero(t, c.analyzer.Pattern("door.front").TotalObservations())
}

func TestNotificationDedup(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	a := Anomaly{
		EntityID: "door.front", Type: pattern.AnomalyUnusualActivity,
		Source: "statistical", Severity: entityAttention, Timestamp: monday,
	}
	c.notifyAnomalies(monday, []Anomaly{a})
	require.Equal(t, monday, c.lastNotificationTime)
	require.Equal(t, "statistical", c.lastNotificationType)

	// mesma (entidade, tipo) dentro do intervalo: suprimida
	c.notifyAnomalies(monday.Add(10*time.Minute), []Anomaly{a})
	require.Equal(t, monday, c.lastNotificationTime)

	// depois do intervalo de dedup volta a notificar
	later := monday.Add(2 * time.Hour)
	c.notifyAnomalies(later, []Anomaly{a})
	require.Equal(t, later, c.lastNotificationTime)
}

func TestWelfareNotifiedOncePerTransition(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	w := Welfare{Status: WelfareConcern, Reasons: []string{"r"}}
	c.notifyWelfare(monday, w)
	require.Equal(t, "welfare", c.lastNotificationType)
	first := c.lastNotificationTime

	c.lastWelfareStatus = WelfareConcern
	c.notifyWelfare(monday.Add(time.Minute), w)
	require.Equal(t, first, c.lastNotificationTime)

	// check_recommended não notifica
	c.lastWelfareStatus = WelfareOK
	c.notifyWelfare(monday.Add(2*time.Minute), Welfare{Status: WelfareCheck})
	require.Equal(t, first, c.lastNotificationTime)
}

func TestSnoozeKeepsWelfareTransitionPending(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	// rotina densa: um evento por hora durante oito dias
	base := monday.AddDate(0, 0, -9)
	for i := 0; i < 192; i++ {
		c.HandleEvent(event("door.front", base.Add(time.Duration(i)*time.Hour)))
	}

	// silêncio de um dia já em curso quando a soneca entra
	require.NoError(t, c.Snooze("24h"))
	res := c.Tick()
	require.Equal(t, StateSnoozed, res.State)
	require.Equal(t, WelfareOK, res.Welfare.Status)
	require.Empty(t, c.lastWelfareStatus)
	require.Nil(t, res.LastNotification)

	// soneca expira com o silêncio ainda em curso: a transição sai agora
	now = monday.Add(25 * time.Hour)
	res = c.Tick()
	require.Equal(t, StateActive, res.State)
	require.Equal(t, WelfareAlert, res.Welfare.Status)
	require.NotNil(t, res.LastNotification)
	require.Equal(t, "welfare", res.LastNotification.Type)
	require.Equal(t, WelfareAlert, c.lastWelfareStatus)
}

func TestTickDuringLearning(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	c.HandleEvent(event("door.front", monday.Add(-time.Hour)))
	res := c.Tick()

	require.Equal(t, StateLearning, res.State)
	require.Equal(t, WelfareOK, res.Welfare.Status)
	require.False(t, res.AnomalyDetected)
	require.Less(t, res.Confidence, 100.0)
	require.False(t, res.StatTraining.Complete)
	require.NotEqual(t, "complete", res.StatTraining.Remaining)
}

func TestAnomalyFlowEndToEnd(t *testing.T) {
	db := openStore(t, filepath.Join(t.TempDir(), "bm.db"))
	defer db.Close()
	now := monday
	c := newCoordinator(db, false, &now)

	// linha de base: uma mudança por segunda 09:00 nas três semanas anteriores
	for w := 3; w >= 1; w-- {
		c.HandleEvent(event("door.front", monday.AddDate(0, 0, -7*w)))
	}
	// hoje: rajada fora do padrão no mesmo intervalo
	for i := 0; i < 5; i++ {
		c.HandleEvent(event("door.front", monday.Add(time.Duration(i)*time.Minute)))
	}

	now = monday.Add(5 * time.Minute)
	res := c.Tick()

	require.Equal(t, StateActive, res.State)
	require.True(t, res.AnomalyDetected)
	require.Equal(t, "statistical", res.Anomalies[0].Source)
	require.Equal(t, pattern.AnomalyUnusualActivity, res.Anomalies[0].Type)
	// rajada sobre rotina de variância zero gradua no topo
	require.Equal(t, entityAlert, res.Anomalies[0].Severity)

	// anomalia persistida e notificação emitida
	stored, err := db.ListAnomalies(10)
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	require.NotNil(t, res.LastNotification)

	// bem-estar escala junto
	require.NotEqual(t, WelfareOK, res.Welfare.Status)
	require.NotEmpty(t, res.Welfare.Reasons)

	// segundo tick no mesmo intervalo: dedup segura a re-notificação
	firstNotif := res.LastNotification.Time
	now = monday.Add(6 * time.Minute)
	res2 := c.Tick()
	require.NotNil(t, res2.LastNotification)
	require.Equal(t, firstNotif, res2.LastNotification.Time)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm.db")
	now := monday

	db := openStore(t, path)
	c := newCoordinator(db, false, &now)
	for w := 2; w >= 1; w-- {
		c.HandleEvent(event("door.front", monday.AddDate(0, 0, -7*w)))
	}
	require.NoError(t, c.Snooze("24h"))
	c.EnableHolidayMode()
	c.Shutdown()
	require.NoError(t, db.Close())

	db2 := openStore(t, path)
	defer db2.Close()
	c2 := newCoordinator(db2, false, &now)
	c2.Setup()

	require.True(t, c2.HolidayMode())
	require.Equal(t, StateHoliday, c2.State())
	require.Equal(t, 2, c2.analyzer.Pattern("door.front").TotalObservations())

	// soneca sobrevive ao reinício e expira no tempo certo
	c2.DisableHolidayMode()
	require.True(t, c2.IsSnoozed())
	now = monday.Add(25 * time.Hour)
	require.False(t, c2.IsSnoozed())
}

func TestSetupToleratesCorruptSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm.db")
	now := monday

	db := openStore(t, path)
	defer db.Close()
	// seção do analisador com forma errada: degrada só ela
	require.NoError(t, db.SaveSection(sectionAnalyzer, []int{1, 2, 3}))

	c := newCoordinator(db, false, &now)
	c.Setup()
	require.Equal(t, StateLearning, c.State())

	c.HandleEvent(event("door.front", monday))
	require.Equal(t, 1, c.analyzer.Pattern("door.front").TotalObservations())
}

func TestMLWarmStartFromEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm.db")
	now := monday

	db := openStore(t, path)
	c := newCoordinator(db, true, &now)
	for i := 0; i < 10; i++ {
		c.HandleEvent(event("door.front", monday.Add(time.Duration(i)*time.Minute)))
	}
	require.Equal(t, 10, c.model.SampleCount())
	// sem Shutdown: a seção ml nunca foi gravada
	require.NoError(t, db.Close())

	db2 := openStore(t, path)
	defer db2.Close()
	c2 := newCoordinator(db2, true, &now)
	c2.Setup()

	// reconstruído do log de eventos brutos
	require.Equal(t, 10, c2.model.SampleCount())
	require.False(t, c2.model.LastRetrain().IsZero())
}
