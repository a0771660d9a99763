package entities

import "testing"

func TestNew(t *testing.T) {
	s, err := New([]EntityYAML{
		{ID: "light.x", Name: "X", Kind: "light"},
		{ID: "door.y", Kind: "door"},
		{ID: "light.x"}, // duplicado é ignorado
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(s.Items) != 2 {
		t.Fatalf("items=%d want=2", len(s.Items))
	}
	if !s.Contains("door.y") || s.Contains("nope") {
		t.Fatalf("Contains errado")
	}
	ids := s.IDs()
	if ids[0] != "door.y" || ids[1] != "light.x" {
		t.Fatalf("ids fora de ordem: %v", ids)
	}
}

func TestNewRejectsMissingID(t *testing.T) {
	if _, err := New([]EntityYAML{{Name: "sem id"}}); err == nil {
		t.Fatalf("esperava erro para entidade sem id")
	}
}
