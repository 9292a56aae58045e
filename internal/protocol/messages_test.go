package protocol

import (
	"errors"
	"testing"
)

func TestDecodeKnownTypes(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"settings", `{"type":"updateSettings","color":"#fff"}`, TypeUpdateSettings},
		{"trail", `{"type":"lightTrail","trail":{"x":1,"y":2}}`, TypeLightTrail},
		{"cursor", `{"type":"mousePosition","x":3,"y":4}`, TypeMousePosition},
		{"clear", `{"type":"clear"}`, TypeClear},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Decode([]byte(tc.data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			if m.MessageType() != tc.want {
				t.Errorf("type %q, want %q", m.MessageType(), tc.want)
			}
		})
	}
}

func TestDecodeTrailPayload(t *testing.T) {
	m, err := Decode([]byte(`{"type":"lightTrail","trail":{"x":10.5,"y":-2},"color":"#abc","size":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	trail, ok := m.(*LightTrail)
	if !ok {
		t.Fatalf("got %T, want *LightTrail", m)
	}

	if trail.Trail.X != 10.5 || trail.Trail.Y != -2 {
		t.Errorf("point (%v, %v)", trail.Trail.X, trail.Trail.Y)
	}

	if trail.Color != "#abc" {
		t.Errorf("inline color %v", trail.Color)
	}
}

func TestDecodeTrailWithoutPoint(t *testing.T) {
	_, err := Decode([]byte(`{"type":"lightTrail"}`))

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("got %v, want *DecodeError", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	m, err := Decode([]byte(`{"type":"teleport","x":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	u, ok := m.(*Unknown)
	if !ok {
		t.Fatalf("got %T, want *Unknown", m)
	}

	if u.TypeName != "teleport" {
		t.Errorf("type name %q", u.TypeName)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, data := range []string{`{not json`, `{"x":1}`, `[]`} {
		_, err := Decode([]byte(data))

		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("%q: got %v, want *DecodeError", data, err)
		}
	}
}

func TestDecodeToleratesWrongSettingsTypes(t *testing.T) {
	m, err := Decode([]byte(`{"type":"updateSettings","color":7,"size":"huge"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if _, ok := m.(*UpdateSettings); !ok {
		t.Fatalf("got %T, want *UpdateSettings", m)
	}
}

func TestDecodeServerRoundTrip(t *testing.T) {
	own := DefaultSettings("abcd")
	peers := []PeerSettings{{ClientID: "peer-1", Settings: DefaultSettings("peer-1")}}

	data, err := Marshal(NewWelcome("abcd", 2, own, peers))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	m, err := DecodeServer(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	w, ok := m.(*Welcome)
	if !ok {
		t.Fatalf("got %T, want *Welcome", m)
	}

	if w.ClientID != "abcd" || w.ClientCount != 2 || len(w.AllSettings) != 1 {
		t.Errorf("welcome %+v", w)
	}

	if w.Metadata.Settings != own {
		t.Errorf("metadata settings %+v", w.Metadata.Settings)
	}
}

func TestTrailEventCarriesInlineSettings(t *testing.T) {
	s := Settings{Color: "#123", Size: 2, Glow: 1, CursorMode: "halo", Username: "n"}

	data, err := Marshal(NewTrailEvent("id-1", Point{X: 5, Y: 6}, s, 1700000000000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	m, err := DecodeServer(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	ev, ok := m.(*TrailEvent)
	if !ok {
		t.Fatalf("got %T, want *TrailEvent", m)
	}

	if ev.ClientID != "id-1" || ev.Color != "#123" || ev.Timestamp != 1700000000000 {
		t.Errorf("event %+v", ev)
	}
}

func TestWelcomeSnapshotNeverNull(t *testing.T) {
	data, err := Marshal(NewWelcome("solo", 1, DefaultSettings("solo"), nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	m, err := DecodeServer(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if w := m.(*Welcome); w.AllSettings == nil {
		t.Error("allSettings decoded as nil")
	}
}
