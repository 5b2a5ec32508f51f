package selection

import "testing"

func TestDecodeRestoreTokenV3IgnoresUnknownKeys(t *testing.T) {
	rt := DecodeRestoreTokenV3(map[string]interface{}{
		"output":     "HDMI-A-1",
		"withCursor": uint32(1),
		"timeIssued": uint64(1700000000),
		"bogus":      "ignored",
	})
	if rt.Output != "HDMI-A-1" || !rt.WithCursor || rt.TimeIssued != 1700000000 {
		t.Errorf("got %+v", rt)
	}
}

func TestDecodeRestoreTokenV2PositionalFields(t *testing.T) {
	rt := DecodeRestoreTokenV2("todo", 0, "HDMI-A-1", true, 42)
	if rt.Version != 2 || rt.Output != "HDMI-A-1" || !rt.WithCursor || rt.TimeIssued != 42 {
		t.Errorf("got %+v", rt)
	}
}

func TestFromRestoreTokenRejectsUnknownVersion(t *testing.T) {
	if _, ok := FromRestoreToken(RestoreToken{Version: 1}, nil); ok {
		t.Fatal("expected version 1 to be rejected")
	}
}

func TestFromRestoreTokenRejectsEmptyOutputSelection(t *testing.T) {
	if _, ok := FromRestoreToken(RestoreToken{Version: 3}, nil); ok {
		t.Fatal("expected empty output/window token to be rejected")
	}
}

func TestBuildRestoreTokenOutputSelection(t *testing.T) {
	fields := BuildRestoreToken(Selection{Type: TypeOutput, Output: "HDMI-A-1"}, true, 99, "cookie")
	if fields["output"] != "HDMI-A-1" {
		t.Errorf("got %+v", fields)
	}
	if _, present := fields["windowHandle"]; present {
		t.Errorf("output selection should not carry windowHandle: %+v", fields)
	}
}

func TestBuildRestoreTokenWindowSelection(t *testing.T) {
	fields := BuildRestoreToken(Selection{Type: TypeWindow, WindowHandle: 7, WindowClass: "kitty"}, false, 1, "cookie")
	if fields["windowHandle"] != uint64(7) || fields["windowClass"] != "kitty" {
		t.Errorf("got %+v", fields)
	}
}

func TestValidateSelectionTypeRejectsWindowWithoutToplevelExport(t *testing.T) {
	if _, err := ValidateSelectionType(Selection{Type: TypeWindow}, false); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ValidateSelectionType(Selection{Type: TypeOutput}, false); err != nil {
		t.Errorf("output selection should not require toplevel export: %v", err)
	}
}
