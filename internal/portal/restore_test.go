package portal

import (
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
)

func selectionForTest() selection.Selection {
	return selection.Selection{Type: selection.TypeOutput, Output: "HDMI-A-1", AllowToken: true}
}

func TestDecodeRestoreDataV2RoundTrip(t *testing.T) {
	tuple := []interface{}{
		"hyprland",
		uint32(2),
		[]interface{}{"tok-1", uint64(42), "HDMI-A-1", true, uint64(1700000000)},
	}
	rt, ok := decodeRestoreData(dbus.MakeVariant(tuple))
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if rt.Version != 2 || rt.Token != "tok-1" || rt.WindowHandle != 42 || rt.Output != "HDMI-A-1" || !rt.WithCursor {
		t.Fatalf("unexpected decode result: %+v", rt)
	}
}

func TestDecodeRestoreDataV3RoundTrip(t *testing.T) {
	payload := map[string]dbus.Variant{
		"output":     dbus.MakeVariant("DP-1"),
		"withCursor": dbus.MakeVariant(true),
		"timeIssued": dbus.MakeVariant(uint64(99)),
	}
	tuple := []interface{}{"hyprland", uint32(3), payload}
	rt, ok := decodeRestoreData(dbus.MakeVariant(tuple))
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if rt.Version != 3 || rt.Output != "DP-1" || !rt.WithCursor || rt.TimeIssued != 99 {
		t.Fatalf("unexpected decode result: %+v", rt)
	}
}

func TestDecodeRestoreDataRejectsWrongIssuer(t *testing.T) {
	tuple := []interface{}{"gnome-shell", uint32(3), map[string]dbus.Variant{}}
	if _, ok := decodeRestoreData(dbus.MakeVariant(tuple)); ok {
		t.Fatalf("expected rejection of foreign issuer token")
	}
}

func TestDecodeRestoreDataRejectsMalformedShape(t *testing.T) {
	cases := []interface{}{
		"not-a-tuple",
		[]interface{}{"hyprland", uint32(3)},
		[]interface{}{"hyprland", uint32(99), map[string]dbus.Variant{}},
	}
	for _, c := range cases {
		if _, ok := decodeRestoreData(dbus.MakeVariant(c)); ok {
			t.Fatalf("expected rejection of malformed payload %#v", c)
		}
	}
}

func TestBuildRestoreVariantRoundTripsThroughDecodeRestoreData(t *testing.T) {
	sel := selectionForTest()
	v := buildRestoreVariant(sel, true, 12345)

	tuple, ok := v.Value().(restoreDataStruct)
	if !ok {
		t.Fatalf("expected restoreDataStruct, got %T", v.Value())
	}
	if tuple.Issuer != "hyprland" || tuple.Version != 3 {
		t.Fatalf("unexpected header: %+v", tuple)
	}

	payload, ok := tuple.Payload.Value().(map[string]dbus.Variant)
	if !ok {
		t.Fatalf("expected payload map, got %T", tuple.Payload.Value())
	}
	if payload["output"].Value().(string) != "HDMI-A-1" {
		t.Fatalf("expected output field to round trip, got %+v", payload)
	}
}
