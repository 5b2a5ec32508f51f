package debugserver

import "testing"

func TestUpdateAndFindSession(t *testing.T) {
	s := New("127.0.0.1:0")

	snap := &Snapshot{
		Sessions: []SessionSnapshot{
			{Path: "/org/freedesktop/portal/desktop/session/u1/s1", AppID: "foo", State: "Streaming"},
		},
	}
	s.Update(snap)

	if got := s.current().Sessions[0].AppID; got != "foo" {
		t.Fatalf("AppID = %q, want foo", got)
	}

	found := s.findSession("s1")
	if found == nil {
		t.Fatalf("expected session s1 to be found by suffix")
	}
	if found.AppID != "foo" {
		t.Fatalf("found wrong session: %+v", found)
	}

	if s.findSession("nope") != nil {
		t.Fatalf("expected no match for unknown id")
	}
}

func TestUpdateWithNilSnapshotFallsBackToEmpty(t *testing.T) {
	s := New("127.0.0.1:0")
	s.Update(nil)
	if len(s.current().Sessions) != 0 {
		t.Fatalf("expected empty session list after nil update")
	}
}
