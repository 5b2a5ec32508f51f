package selection

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/config"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
)

const missingQtPlatformPluginDiagnostic = "qt.qpa.plugin: Could not find the Qt platform plugin"

// NotifyFunc is invoked with a user-facing diagnostic message when the
// picker fails in a recognizable way (e.g. missing Qt platform
// plugin). The daemon has no notification portal of its own; wiring
// this to one is the caller's responsibility.
type NotifyFunc func(message string)

// Provider spawns the external picker process and parses its reply.
// Restore tokens are turned into a Selection by FromRestoreToken instead.
type Provider struct {
	cfg       *config.Config
	toplevels *compositor.ToplevelRegistry
	outputs   *compositor.OutputRegistry
	notify    NotifyFunc
}

// New creates a Provider bound to the running compositor's registries
// and the daemon's picker configuration.
func New(cfg *config.Config, toplevels *compositor.ToplevelRegistry, outputs *compositor.OutputRegistry, notify NotifyFunc) *Provider {
	return &Provider{cfg: cfg, toplevels: toplevels, outputs: outputs, notify: notify}
}

// Prompt spawns the picker child process, feeds it the candidate
// window list and required environment, and parses its `[SELECTION]`
// reply. A picker failure or unrecognized reply yields an empty
// (TypeInvalid) Selection, never an error — per PickerFailed policy,
// that surfaces as a failed SelectSources at a higher layer.
func (p *Provider) Prompt(ctx context.Context) Selection {
	log := logger.WithComponent("selection")

	binary := p.cfg.Screencopy.CustomPickerBinary
	if binary == "" {
		binary = "hyprland-share-picker"
	}

	var args []string
	if p.cfg.Screencopy.AllowTokenByDefault {
		args = append(args, "--allow-token")
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(),
		"WAYLAND_DISPLAY="+os.Getenv("WAYLAND_DISPLAY"),
		"QT_QPA_PLATFORM=wayland",
		"XCURSOR_SIZE="+envOrDefault("XCURSOR_SIZE", "24"),
		"HYPRLAND_INSTANCE_SIGNATURE="+envOrDefault("HYPRLAND_INSTANCE_SIGNATURE", "0"),
		"XDPH_WINDOW_SHARING_LIST="+p.buildWindowList(),
	)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Str("binary", binary).Msg("picker process failed")
		p.checkQtDiagnostic(stdout.String(), stderr.String())
		return Selection{}
	}

	out := stdout.String()
	idx := strings.Index(out, "[SELECTION]")
	if idx < 0 {
		log.Warn().Str("stdout", out).Msg("picker reply missing [SELECTION] marker")
		p.checkQtDiagnostic(out, stderr.String())
		return Selection{}
	}

	reply := out[idx+len("[SELECTION]"):]
	reply = strings.TrimRight(reply, "\r\n")
	sel, err := parseReply(reply)
	if err != nil {
		log.Warn().Err(err).Str("reply", reply).Msg("failed to parse picker reply")
		return Selection{}
	}

	sel = p.resolve(sel)
	return sel
}

func (p *Provider) checkQtDiagnostic(stdout, stderr string) {
	if p.notify == nil {
		return
	}
	if strings.Contains(stdout, missingQtPlatformPluginDiagnostic) || strings.Contains(stderr, missingQtPlatformPluginDiagnostic) {
		p.notify("Could not open the picker: qt5-wayland or qt6-wayland doesn't seem to be installed.")
	}
}

// resolve fills in registry-derived fields (window class, address) for
// a window selection now that the raw handle has been parsed.
func (p *Provider) resolve(sel Selection) Selection {
	if sel.Type != TypeWindow {
		return sel
	}
	h := p.toplevels.ByHandle(sel.WindowHandle)
	if h == nil {
		return Selection{}
	}
	sel.WindowClass = h.AppID
	if sel.NeedsTransform {
		logger.WithComponent("selection").Warn().Msg("transform forced on a window selection; ignoring")
		sel.NeedsTransform = false
	}
	return sel
}

// parseReply parses "<flags>/<spec>" into a Selection, without any
// registry lookups.
func parseReply(reply string) (Selection, error) {
	slash := strings.IndexByte(reply, '/')
	if slash < 0 {
		return Selection{}, fmt.Errorf("selection: malformed reply %q", reply)
	}
	flags, spec := reply[:slash], reply[slash+1:]

	sel := Selection{}
	for _, f := range flags {
		switch f {
		case 'r':
			sel.AllowToken = true
		case 't':
			sel.NeedsTransform = true
		default:
			logger.WithComponent("selection").Debug().Str("flag", string(f)).Msg("unknown picker flag")
		}
	}

	switch {
	case strings.HasPrefix(spec, "screen:"):
		sel.Type = TypeOutput
		sel.Output = strings.TrimSuffix(spec[len("screen:"):], "\n")
	case strings.HasPrefix(spec, "window:"):
		sel.Type = TypeWindow
		handle, err := strconv.ParseUint(spec[len("window:"):], 10, 32)
		if err != nil {
			return Selection{}, fmt.Errorf("selection: bad window handle: %w", err)
		}
		sel.WindowHandle = uint32(handle)
	case strings.HasPrefix(spec, "region:"):
		rest := spec[len("region:"):]
		at := strings.IndexByte(rest, '@')
		if at < 0 {
			return Selection{}, fmt.Errorf("selection: malformed region spec %q", spec)
		}
		sel.Type = TypeGeometry
		sel.Output = rest[:at]
		coords := strings.Split(rest[at+1:], ",")
		if len(coords) != 4 {
			return Selection{}, fmt.Errorf("selection: expected 4 coords in region spec, got %d", len(coords))
		}
		vals := make([]int32, 4)
		for i, c := range coords {
			n, err := strconv.ParseInt(c, 10, 32)
			if err != nil {
				return Selection{}, fmt.Errorf("selection: bad region coordinate %q: %w", c, err)
			}
			vals[i] = int32(n)
		}
		sel.X, sel.Y, sel.W, sel.H = vals[0], vals[1], vals[2], vals[3]
	default:
		return Selection{}, fmt.Errorf("selection: unrecognized spec %q", spec)
	}
	return sel, nil
}

// buildWindowList renders the candidate toplevel list in the picker's
// delimited text form, or an empty string if the compositor has no
// foreign-toplevel-management support.
func (p *Provider) buildWindowList() string {
	if p.toplevels == nil {
		return ""
	}
	var sb strings.Builder
	for _, h := range p.toplevels.List() {
		fmt.Fprintf(&sb, "%d[HC>]%s[HT>]%s[HE>]%s[HA>]",
			h.Handle,
			sanitizeForWindowList(h.AppID),
			sanitizeForWindowList(h.Title),
			sanitizeForWindowList(h.Address),
		)
	}
	return sb.String()
}

var windowListStripper = strings.NewReplacer("'", " ", "\"", " ", "$", " ", "`", " ")

// sanitizeForWindowList strips quote/dollar/backtick characters and
// collapses any accidental "]" that would prematurely close a field
// delimiter, keeping the delimited list unambiguous to parse.
func sanitizeForWindowList(s string) string {
	s = windowListStripper.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if i > 0 && s[i-1] == '>' && s[i] == ']' {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
