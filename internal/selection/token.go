package selection

import (
	"fmt"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
)

// TokenIssuer is the issuer name written into issued restore tokens. The
// portal's restore-data decoder refuses tokens from any other issuer
// before FromRestoreToken sees them, and SelectSources then prompts.
const TokenIssuer = "hyprland"

// RestoreToken is the decoded payload of a restore_data bus argument,
// independent of which wire version produced it.
type RestoreToken struct {
	Version      uint32
	Token        string
	Output       string
	WindowHandle uint64
	WindowClass  string
	WithCursor   bool
	TimeIssued   uint64
}

// DecodeRestoreTokenV2 decodes the positional-tuple payload:
// (token:s, windowHandle:u, output:s, withCursor:b, timeIssued:t).
func DecodeRestoreTokenV2(token string, windowHandle uint64, output string, withCursor bool, timeIssued uint64) RestoreToken {
	return RestoreToken{
		Version:      2,
		Token:        token,
		Output:       output,
		WindowHandle: windowHandle,
		WithCursor:   withCursor,
		TimeIssued:   timeIssued,
	}
}

// DecodeRestoreTokenV3 decodes the open key/value map payload. Unknown
// keys are ignored; a missing key leaves the corresponding field zero.
func DecodeRestoreTokenV3(fields map[string]interface{}) RestoreToken {
	rt := RestoreToken{Version: 3}
	for k, v := range fields {
		switch k {
		case "output":
			rt.Output, _ = v.(string)
		case "windowHandle":
			rt.WindowHandle = toUint64(v)
		case "windowClass":
			rt.WindowClass, _ = v.(string)
		case "withCursor":
			rt.WithCursor = toBool(v)
		case "timeIssued":
			rt.TimeIssued = toUint64(v)
		case "token":
			rt.Token, _ = v.(string)
		}
	}
	return rt
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

// FromRestoreToken reconstructs a Selection from a decoded restore
// token, validated against the still-live toplevel registry. It
// returns (Selection{}, false) if the referenced window no longer exists,
// if an output token names no output, or if the caller should fall back
// to prompting. It does not check that a named output still exists;
// SelectSources checks that against the output registry.
func FromRestoreToken(rt RestoreToken, toplevels *compositor.ToplevelRegistry) (Selection, bool) {
	if rt.Version != 2 && rt.Version != 3 {
		return Selection{}, false
	}

	isWindow := rt.WindowClass != ""

	var handle *compositor.ToplevelHandle
	if isWindow {
		if rt.WindowHandle != 0 {
			handle = toplevels.ByHandle(uint32(rt.WindowHandle))
		}
		if handle == nil {
			handle = toplevels.ByClass(rt.WindowClass)
		}
		if handle == nil {
			return Selection{}, false
		}
	} else if rt.Output == "" {
		return Selection{}, false
	}

	sel := Selection{
		Output:      rt.Output,
		WindowClass: rt.WindowClass,
		AllowToken:  true,
	}
	if isWindow {
		sel.Type = TypeWindow
		sel.WindowHandle = handle.Handle
	} else {
		sel.Type = TypeOutput
	}
	return sel, true
}

// BuildRestoreToken assembles the v3 payload map issued to clients on
// a successful Start when the selection allows tokens.
func BuildRestoreToken(sel Selection, withCursor bool, timeIssued uint64, cookie string) map[string]interface{} {
	fields := make(map[string]interface{}, 6)
	switch sel.Type {
	case TypeOutput, TypeGeometry:
		fields["output"] = sel.Output
	case TypeWindow:
		fields["windowHandle"] = uint64(sel.WindowHandle)
		fields["windowClass"] = sel.WindowClass
	}
	fields["timeIssued"] = timeIssued
	fields["token"] = cookie
	fields["withCursor"] = withCursor
	return fields
}

// ValidateSelectionType rejects a WINDOW selection when the compositor
// has no toplevel-export protocol bound, per UnsupportedSelection.
func ValidateSelectionType(sel Selection, toplevelExportAvailable bool) (Selection, error) {
	if sel.Type == TypeWindow && !toplevelExportAvailable {
		return Selection{}, fmt.Errorf("selection: window capture requested but compositor has no toplevel-export protocol")
	}
	return sel, nil
}
