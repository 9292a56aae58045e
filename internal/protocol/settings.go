package protocol

import (
	"math"
	"strings"
)

// Process-wide defaults applied on first contact, before a client has ever
// sent a valid value for a field.
const (
	DefaultColor = "#ff6b6b"
	DefaultSize  = 1.0
	DefaultGlow  = 1.2

	MinScale = 0.5
	MaxScale = 3.0

	MaxUsernameLen = 18

	CursorHalo = "halo"
	CursorStar = "star"
)

// Settings is the sanitized, always-valid record of a client's display
// preferences. Every field is present and in range after Sanitize.
type Settings struct {
	Color      string  `json:"color"`
	Size       float64 `json:"size"`
	Glow       float64 `json:"glow"`
	CursorMode string  `json:"cursorMode"`
	Username   string  `json:"username"`
}

// RawSettings is the loose, untrusted shape settings arrive in. Fields are
// `any` so that a string where a number belongs (or vice versa) survives
// JSON decoding and is handled by Sanitize instead of failing the envelope.
type RawSettings struct {
	Color      any `json:"color,omitempty"`
	Size       any `json:"size,omitempty"`
	Glow       any `json:"glow,omitempty"`
	CursorMode any `json:"cursorMode,omitempty"`
	Username   any `json:"username,omitempty"`
}

// Raw converts a sanitized record back into the loose shape, mainly so
// callers can re-feed acknowledged settings through Sanitize.
func (s Settings) Raw() RawSettings {
	return RawSettings{
		Color:      s.Color,
		Size:       s.Size,
		Glow:       s.Glow,
		CursorMode: s.CursorMode,
		Username:   s.Username,
	}
}

// DefaultSettings returns the record a brand-new identity starts with.
func DefaultSettings(identity string) Settings {
	return Settings{
		Color:      DefaultColor,
		Size:       DefaultSize,
		Glow:       DefaultGlow,
		CursorMode: CursorHalo,
		Username:   placeholderUsername(identity),
	}
}

// Sanitize merges raw against the identity's previous record and returns a
// record satisfying every Settings invariant. It is deterministic and
// idempotent: sanitizing an already-sanitized record is a no-op.
//
// fallback may be the zero value on first contact; missing fields then
// resolve to the process defaults.
func Sanitize(raw RawSettings, fallback Settings, identity string) Settings {
	out := Settings{}

	if s, ok := raw.Color.(string); ok && s != "" {
		out.Color = s
	} else if fallback.Color != "" {
		out.Color = fallback.Color
	} else {
		out.Color = DefaultColor
	}

	out.Size = scaleField(raw.Size, fallback.Size, DefaultSize)
	out.Glow = scaleField(raw.Glow, fallback.Glow, DefaultGlow)

	// "star" must match exactly; anything else, including a missing field,
	// renders as the halo cursor.
	if s, ok := raw.CursorMode.(string); ok && s == CursorStar {
		out.CursorMode = CursorStar
	} else {
		out.CursorMode = CursorHalo
	}

	out.Username = usernameField(raw.Username, fallback.Username, identity)

	return out
}

func scaleField(raw any, fallback, def float64) float64 {
	if f, ok := finite(raw); ok {
		return clampScale(f)
	}
	if fallback != 0 {
		return clampScale(fallback)
	}
	return def
}

func clampScale(f float64) float64 {
	if f < MinScale {
		return MinScale
	}
	if f > MaxScale {
		return MaxScale
	}
	return f
}

// finite reports whether raw decoded as a usable number. encoding/json
// produces float64 for all JSON numbers; everything else is rejected.
func finite(raw any) (float64, bool) {
	f, ok := raw.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// usernameField normalizes length and whitespace only; content is never
// rejected. An empty result falls back to the prior name, then to a
// placeholder derived from the identity.
func usernameField(raw any, fallback, identity string) string {
	if s, ok := raw.(string); ok {
		s = truncate(strings.TrimSpace(s))
		if s != "" {
			return s
		}
	}
	if f := truncate(strings.TrimSpace(fallback)); f != "" {
		return f
	}
	return placeholderUsername(identity)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > MaxUsernameLen {
		return string(r[:MaxUsernameLen])
	}
	return s
}

func placeholderUsername(identity string) string {
	tail := identity
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return "Star-" + strings.ToUpper(tail)
}
