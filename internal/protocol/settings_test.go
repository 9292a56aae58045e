package protocol

import (
	"strings"
	"testing"
)

func TestSanitizeDefaults(t *testing.T) {
	got := Sanitize(RawSettings{}, Settings{}, "abcd-1234")

	want := Settings{
		Color:      "#ff6b6b",
		Size:       1.0,
		Glow:       1.2,
		CursorMode: "halo",
		Username:   "Star-1234",
	}

	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSanitizeClampsToNearestBound(t *testing.T) {
	got := Sanitize(RawSettings{Size: 99.0, Glow: 0.1}, Settings{}, "id")

	if got.Size != MaxScale {
		t.Errorf("size %v, want %v", got.Size, MaxScale)
	}

	if got.Glow != MinScale {
		t.Errorf("glow %v, want %v", got.Glow, MinScale)
	}
}

func TestSanitizeBoundaryValuesPass(t *testing.T) {
	got := Sanitize(RawSettings{Size: 0.5, Glow: 3.0}, Settings{}, "id")

	if got.Size != 0.5 || got.Glow != 3.0 {
		t.Errorf("boundary values altered: size %v glow %v", got.Size, got.Glow)
	}
}

func TestSanitizeWrongTypesFallBack(t *testing.T) {
	prior := Settings{Color: "#00ff00", Size: 2.0, Glow: 1.5, CursorMode: "star", Username: "prior"}

	got := Sanitize(RawSettings{Color: 42.0, Size: "big", Glow: true}, prior, "id")

	if got.Color != "#00ff00" {
		t.Errorf("color %q, want prior", got.Color)
	}

	if got.Size != 2.0 || got.Glow != 1.5 {
		t.Errorf("size %v glow %v, want prior values", got.Size, got.Glow)
	}
}

func TestSanitizeCursorModeExactMatchOnly(t *testing.T) {
	for _, raw := range []any{"star "} {
		got := Sanitize(RawSettings{CursorMode: raw}, Settings{}, "id")
		if got.CursorMode != CursorHalo {
			t.Errorf("cursorMode %q for raw %v, want halo", got.CursorMode, raw)
		}
	}

	// A prior "star" does not survive an invalid update; the mode is
	// recomputed from the raw value alone.
	got := Sanitize(RawSettings{CursorMode: "comet"}, Settings{CursorMode: CursorStar}, "id")
	if got.CursorMode != CursorHalo {
		t.Errorf("cursorMode %q, want halo", got.CursorMode)
	}

	got = Sanitize(RawSettings{CursorMode: "star"}, Settings{}, "id")
	if got.CursorMode != CursorStar {
		t.Errorf("cursorMode %q, want star", got.CursorMode)
	}
}

func TestSanitizeUsernameTruncation(t *testing.T) {
	long := strings.Repeat("a", 30)

	got := Sanitize(RawSettings{Username: long}, Settings{}, "id")

	if len([]rune(got.Username)) != MaxUsernameLen {
		t.Errorf("username length %d, want %d", len([]rune(got.Username)), MaxUsernameLen)
	}
}

func TestSanitizeUsernameMultibyteTruncation(t *testing.T) {
	long := strings.Repeat("é", 30)

	got := Sanitize(RawSettings{Username: long}, Settings{}, "id")

	if got.Username != strings.Repeat("é", 18) {
		t.Errorf("username %q, want 18 runes", got.Username)
	}
}

func TestSanitizeWhitespaceUsernameFallsBack(t *testing.T) {
	got := Sanitize(RawSettings{Username: "   "}, Settings{Username: "keeper"}, "id")

	if got.Username != "keeper" {
		t.Errorf("username %q, want keeper", got.Username)
	}

	got = Sanitize(RawSettings{Username: "   "}, Settings{}, "wxyz-9f3a")

	if got.Username != "Star-9F3A" {
		t.Errorf("username %q, want Star-9F3A", got.Username)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	raw := RawSettings{Color: "#123456", Size: 7.0, Glow: 0.0, CursorMode: "star", Username: "  padded name  "}

	once := Sanitize(raw, Settings{}, "abcd")
	twice := Sanitize(once.Raw(), once, "abcd")

	if once != twice {
		t.Errorf("not idempotent: %+v vs %+v", once, twice)
	}
}

func TestDefaultSettingsShortIdentity(t *testing.T) {
	got := DefaultSettings("ab")

	if got.Username != "Star-AB" {
		t.Errorf("username %q, want Star-AB", got.Username)
	}
}
