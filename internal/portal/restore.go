package portal

import (
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
)

// restoreDataStruct mirrors the (suv) wire shape of the restore_data
// bus argument: issuer, wire version, opaque payload.
type restoreDataStruct struct {
	Issuer  string
	Version uint32
	Payload dbus.Variant
}

// point mirrors a (ii) position or size pair.
type point struct {
	X, Y int32
}

// streamEntry mirrors one entry of the Start result's streams:a(ua{sv}).
type streamEntry struct {
	NodeID uint32
	Data   map[string]dbus.Variant
}

// decodeRestoreData accepts a restore_data variant off the bus and
// returns the decoded token, or ok=false if it is malformed, from an
// issuer other than this portal's, or an unsupported wire version.
func decodeRestoreData(v dbus.Variant) (selection.RestoreToken, bool) {
	tuple, ok := v.Value().([]interface{})
	if !ok || len(tuple) != 3 {
		return selection.RestoreToken{}, false
	}

	issuer, _ := tuple[0].(string)
	if issuer != selection.TokenIssuer {
		return selection.RestoreToken{}, false
	}
	version := toUint32(tuple[1])
	payload := unwrapVariant(tuple[2])

	switch version {
	case 2:
		fields, ok := payload.([]interface{})
		if !ok || len(fields) != 5 {
			return selection.RestoreToken{}, false
		}
		token, _ := fields[0].(string)
		windowHandle := toUint64(fields[1])
		output, _ := fields[2].(string)
		withCursor := toBool(fields[3])
		timeIssued := toUint64(fields[4])
		return selection.DecodeRestoreTokenV2(token, windowHandle, output, withCursor, timeIssued), true

	case 3:
		fields := map[string]interface{}{}
		switch m := payload.(type) {
		case map[string]dbus.Variant:
			for k, vv := range m {
				fields[k] = vv.Value()
			}
		case map[string]interface{}:
			fields = m
		default:
			return selection.RestoreToken{}, false
		}
		return selection.DecodeRestoreTokenV3(fields), true

	default:
		return selection.RestoreToken{}, false
	}
}

// buildRestoreVariant assembles the v3 restore_data reply issued on a
// successful Start when the session's selection allows tokens.
func buildRestoreVariant(sel selection.Selection, withCursor bool, timeIssued uint64) dbus.Variant {
	fields := selection.BuildRestoreToken(sel, withCursor, timeIssued, uuid.NewString())
	payload := make(map[string]dbus.Variant, len(fields))
	for k, val := range fields {
		payload[k] = dbus.MakeVariant(val)
	}
	return dbus.MakeVariant(restoreDataStruct{
		Issuer:  selection.TokenIssuer,
		Version: 3,
		Payload: dbus.MakeVariant(payload),
	})
}

func unwrapVariant(v interface{}) interface{} {
	if dv, ok := v.(dbus.Variant); ok {
		return dv.Value()
	}
	return v
}

func toUint32(v interface{}) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case uint64:
		return uint32(n)
	case int32:
		return uint32(n)
	case int:
		return uint32(n)
	default:
		return 0
	}
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case int64:
		return uint64(n)
	case int:
		return uint64(n)
	default:
		return 0
	}
}

func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case uint32:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}
