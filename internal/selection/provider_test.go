package selection

import "testing"

func TestParseReplyScreen(t *testing.T) {
	sel, err := parseReply("r/screen:HDMI-A-1")
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if sel.Type != TypeOutput || sel.Output != "HDMI-A-1" || !sel.AllowToken {
		t.Errorf("got %+v", sel)
	}
}

func TestParseReplyWindow(t *testing.T) {
	sel, err := parseReply("/window:12345678")
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if sel.Type != TypeWindow || sel.WindowHandle != 12345678 {
		t.Errorf("got %+v", sel)
	}
}

func TestParseReplyRegionWithTransform(t *testing.T) {
	sel, err := parseReply("rt/region:HDMI-A-1@100,200,640,480")
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if sel.Type != TypeGeometry || sel.Output != "HDMI-A-1" {
		t.Errorf("got %+v", sel)
	}
	if sel.X != 100 || sel.Y != 200 || sel.W != 640 || sel.H != 480 {
		t.Errorf("bad coords: %+v", sel)
	}
	if !sel.NeedsTransform || !sel.AllowToken {
		t.Errorf("expected both flags set: %+v", sel)
	}
}

func TestParseReplyRejectsMalformedSpec(t *testing.T) {
	if _, err := parseReply("r/nonsense"); err == nil {
		t.Fatal("expected error for unrecognized spec")
	}
}

func TestParseReplyRejectsMissingSlash(t *testing.T) {
	if _, err := parseReply("screen:HDMI-A-1"); err == nil {
		t.Fatal("expected error for missing flags/spec separator")
	}
}

func TestSanitizeForWindowListStripsQuotesAndDelimiterCollisions(t *testing.T) {
	got := sanitizeForWindowList(`foo"bar'baz` + "`qux$" + "quux[HT>]")
	for _, bad := range []string{`"`, `'`, "`", "$"} {
		if contains(got, bad) {
			t.Errorf("sanitized string %q still contains %q", got, bad)
		}
	}
	if contains(got, "[HT>]") {
		t.Errorf("sanitized string %q still contains a raw field delimiter", got)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
