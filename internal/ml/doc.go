package ml

import (
	"encoding/json"
	"time"
)

// blob é o estado interno serializável da floresta, opaco para quem persiste.
type blob struct {
	Trees         []*hsTree `json:"trees"`
	Scaler        scaler    `json:"scaler"`
	WindowRecords int       `json:"window_records"`
	Swaps         int       `json:"swaps"`
	LastChange    string    `json:"last_change,omitempty"`
}

type EntityDoc struct {
	Model       json.RawMessage `json:"model_blob"`
	SampleCount int             `json:"sample_count"`
	FirstEvent  string          `json:"first_event,omitempty"`
	LastRetrain string          `json:"last_retrain,omitempty"`
}

// Doc é a seção "ml" do documento persistido, uma entrada por entidade.
type Doc map[string]EntityDoc

func (m *Model) Snapshot() Doc {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := Doc{}
	for id, st := range m.states {
		b := blob{
			Trees:         st.trees,
			Scaler:        st.scaler,
			WindowRecords: st.windowRecords,
			Swaps:         st.swaps,
		}
		if !st.lastChange.IsZero() {
			b.LastChange = st.lastChange.UTC().Format(time.RFC3339Nano)
		}
		raw, err := json.Marshal(b)
		if err != nil {
			m.log.Error().Err(err).Str("entity", id).Msg("serialize model blob")
			continue
		}
		ed := EntityDoc{Model: raw, SampleCount: st.sampleCount}
		if !st.firstEvent.IsZero() {
			ed.FirstEvent = st.firstEvent.UTC().Format(time.RFC3339Nano)
		}
		if !st.lastRetrain.IsZero() {
			ed.LastRetrain = st.lastRetrain.UTC().Format(time.RFC3339Nano)
		}
		d[id] = ed
	}
	return d
}

// Restore reconstrói o estado por entidade. Blob ilegível degrada para estado
// novo apenas daquela entidade.
func (m *Model) Restore(d Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, ed := range d {
		var b blob
		if err := json.Unmarshal(ed.Model, &b); err != nil || len(b.Trees) == 0 {
			m.log.Warn().Str("entity", id).Msg("model blob unreadable, relearning entity")
			continue
		}
		st := &entityState{
			trees:         b.Trees,
			scaler:        b.Scaler,
			windowRecords: b.WindowRecords,
			swaps:         b.Swaps,
			sampleCount:   ed.SampleCount,
			firstEvent:    parseTime(ed.FirstEvent),
			lastRetrain:   parseTime(ed.LastRetrain),
			lastChange:    parseTime(b.LastChange),
		}
		m.states[id] = st
	}
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
