package ingest

import (
	"errors"
	"time"

	"github.com/viniciushammett/go-behaviour-monitor/internal/coordinator"
)

// Payload é o evento como chega pela API.
type Payload struct {
	EntityID        string     `json:"entity_id"`
	OldState        string     `json:"old_state"`
	NewState        string     `json:"new_state"`
	TS              *time.Time `json:"ts,omitempty"`
	AttributeChange bool       `json:"attribute_change,omitempty"`
}

var ErrMissingEntity = errors.New("entity_id is required")

type Ingestor struct {
	coord *coordinator.Coordinator
}

func New(coord *coordinator.Coordinator) *Ingestor { return &Ingestor{coord: coord} }

// Submit valida o payload e entrega ao coordenador. Timestamp ausente
// recebe o relógio do servidor.
func (i *Ingestor) Submit(p Payload) error {
	if p.EntityID == "" {
		return ErrMissingEntity
	}
	ev := coordinator.Event{
		EntityID:        p.EntityID,
		OldState:        p.OldState,
		NewState:        p.NewState,
		AttributeChange: p.AttributeChange,
	}
	if p.TS != nil {
		ev.Timestamp = *p.TS
	}
	i.coord.HandleEvent(ev)
	return nil
}
