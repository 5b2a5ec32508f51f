package session

import (
	"testing"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
)

func TestSourceTypeMask(t *testing.T) {
	cases := []struct {
		typ  selection.Type
		want SourceType
	}{
		{selection.TypeOutput, SourceMonitor},
		{selection.TypeWindow, SourceWindow},
		{selection.TypeGeometry, SourceVirtual},
		{selection.TypeWorkspace, SourceVirtual},
		{selection.TypeInvalid, 0},
	}
	for _, c := range cases {
		s := New("app", "/req", "/sess")
		s.Selection.Type = c.typ
		if got := s.SourceTypeMask(); got != c.want {
			t.Errorf("type %v: got %v, want %v", c.typ, got, c.want)
		}
	}
}

func TestManagerCreateGetRemove(t *testing.T) {
	m := NewManager()
	s := m.Create("app", "/req", "/sess/1")
	got, ok := m.Get("/sess/1")
	if !ok || got != s {
		t.Fatal("Get did not return the created session")
	}
	m.Remove("/sess/1")
	if _, ok := m.Get("/sess/1"); ok {
		t.Fatal("session still present after Remove")
	}
	if s.State != StateEnded {
		t.Errorf("state = %v, want StateEnded", s.State)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	s := New("app", "/req", "/sess")
	s.End()
	s.End()
	if s.State != StateEnded {
		t.Errorf("state = %v, want StateEnded", s.State)
	}
}
