package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bState  = []byte("state")     // seções JSON: analyzer, ml, correlation, coordinator
	bAnoms  = []byte("anomalies") // log de anomalias (key=id)
	bEvents = []byte("events")    // eventos brutos p/ replay e export (key=tsNano)
)

type Store struct{ db *bolt.DB }

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bState, bAnoms, bEvents} {
			if _, e := tx.CreateBucketIfNotExists(b); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// -------- Seções de estado (documentos JSON) --------

func (s *Store) SaveSection(name string, doc any) error {
	j, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal section %s: %w", name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bState).Put([]byte(name), j)
	})
}

// LoadSection devolve false quando a seção não existe. Documento malformado
// devolve erro; o chamador decide degradar só aquela seção.
func (s *Store) LoadSection(name string, out any) (bool, error) {
	var raw []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bState).Get([]byte(name)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt section %s: %w", name, err)
	}
	return true, nil
}

// -------- Anomalias --------

type Anomaly struct {
	ID          string    `json:"id"`
	When        time.Time `json:"when"`
	EntityID    string    `json:"entity_id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"` // statistical|ml|correlation
	Severity    string    `json:"severity"`
	Score       float64   `json:"score,omitempty"`
	Description string    `json:"description"`
	Related     []string  `json:"related,omitempty"`
}

func (s *Store) PutAnomaly(a Anomaly) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		j, _ := json.Marshal(a)
		return tx.Bucket(bAnoms).Put([]byte(a.ID), j)
	})
}

func (s *Store) ListAnomalies(limit int) ([]Anomaly, error) {
	out := []Anomaly{}
	_ = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bAnoms).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var a Anomaly
			if json.Unmarshal(v, &a) == nil {
				out = append(out, a)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
		return nil
	})
	return out, nil
}

// -------- Eventos brutos --------

type EventRecord struct {
	TS              time.Time `json:"ts"`
	EntityID        string    `json:"entity_id"`
	OldState        string    `json:"old_state,omitempty"`
	NewState        string    `json:"new_state,omitempty"`
	AttributeChange bool      `json:"attribute_change,omitempty"`
}

func (s *Store) PutEvent(ev EventRecord) error {
	base := ev.TS.UTC().Format(time.RFC3339Nano)
	return s.db.Update(func(tx *bolt.Tx) error {
		j, _ := json.Marshal(ev)
		b := tx.Bucket(bEvents)
		// sufixo incremental evita colisão no mesmo nanossegundo
		k := []byte(base)
		for i := 0; ; i++ {
			if i > 0 {
				k = []byte(fmt.Sprintf("%s:%03d", base, i))
			}
			if b.Get(k) == nil {
				return b.Put(k, j)
			}
		}
	})
}

// RecentEvents devolve até limit eventos, em ordem temporal crescente.
func (s *Store) RecentEvents(limit int) ([]EventRecord, error) {
	out := []EventRecord{}
	_ = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bEvents).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var ev EventRecord
			if json.Unmarshal(v, &ev) != nil {
				continue
			}
			out = append(out, ev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	// inverte para ordem crescente
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) IterateEvents(fn func(ev EventRecord) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ev EventRecord
			if json.Unmarshal(v, &ev) != nil {
				continue
			}
			if !fn(ev) {
				break
			}
		}
		return nil
	})
}

// TrimEvents remove eventos anteriores ao corte; devolve quantos saíram.
func (s *Store) TrimEvents(before time.Time) (int, error) {
	cut := []byte(before.UTC().Format(time.RFC3339Nano))
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bEvents).Cursor()
		for k, _ := c.First(); k != nil && string(k) < string(cut); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
