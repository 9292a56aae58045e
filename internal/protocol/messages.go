package protocol

import (
	"encoding/json"
	"fmt"
)

// Wire message types. The same strings appear in both directions where the
// server relays a client event verbatim (lightTrail, mousePosition, clear).
const (
	TypeUpdateSettings = "updateSettings"
	TypeLightTrail     = "lightTrail"
	TypeMousePosition  = "mousePosition"
	TypeClear          = "clear"
	TypePing           = "ping"

	TypeWelcome      = "welcome"
	TypeClientJoined = "clientJoined"
	TypeClientLeft   = "clientLeft"
	TypeUserSettings = "userSettings"
	TypeSettingsAck  = "settingsAck"
	TypePong         = "pong"
	TypeError        = "error"
)

// Message is any decoded wire message, client- or server-originated.
type Message interface {
	MessageType() string
}

type envelope struct {
	Type string `json:"type"`
}

// Point is the {x,y} pair carried by trail messages.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// --- Client → server ---

// UpdateSettings asks the registry to merge new display settings.
type UpdateSettings struct {
	Type string `json:"type"`
	RawSettings
}

func (UpdateSettings) MessageType() string { return TypeUpdateSettings }

func NewUpdateSettings(raw RawSettings) UpdateSettings {
	return UpdateSettings{Type: TypeUpdateSettings, RawSettings: raw}
}

// LightTrail carries one freshly drawn trail point with inline settings.
type LightTrail struct {
	Type  string `json:"type"`
	Trail *Point `json:"trail"`
	RawSettings
}

func (LightTrail) MessageType() string { return TypeLightTrail }

func NewLightTrail(p Point, raw RawSettings) LightTrail {
	return LightTrail{Type: TypeLightTrail, Trail: &p, RawSettings: raw}
}

// MousePosition carries the sender's live cursor with inline settings.
type MousePosition struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	RawSettings
}

func (MousePosition) MessageType() string { return TypeMousePosition }

func NewMousePosition(x, y float64, raw RawSettings) MousePosition {
	return MousePosition{Type: TypeMousePosition, X: x, Y: y, RawSettings: raw}
}

// Clear asks every peer to wipe the canvas.
type Clear struct {
	Type string `json:"type"`
}

func (Clear) MessageType() string { return TypeClear }

func NewClear() Clear { return Clear{Type: TypeClear} }

// Ping is an application-level keepalive; the server answers with a pong
// directly, never via broadcast.
type Ping struct {
	Type string `json:"type"`
}

func (Ping) MessageType() string { return TypePing }

func NewPing() Ping { return Ping{Type: TypePing} }

// Unknown wraps a type string the decoder does not recognize. Receivers log
// and ignore it.
type Unknown struct {
	TypeName string
}

func (u Unknown) MessageType() string { return u.TypeName }

// DecodeError marks a payload that failed to parse as the envelope shape.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "malformed message: " + e.Reason }

// Decode parses a client-originated message. Unknown types decode to
// *Unknown; payloads that do not fit the envelope return *DecodeError.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}

	switch env.Type {
	case TypeUpdateSettings:
		var m UpdateSettings
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &DecodeError{Reason: err.Error()}
		}
		return &m, nil
	case TypeLightTrail:
		var m LightTrail
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &DecodeError{Reason: err.Error()}
		}
		if m.Trail == nil {
			return nil, &DecodeError{Reason: "lightTrail without trail point"}
		}
		return &m, nil
	case TypeMousePosition:
		var m MousePosition
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &DecodeError{Reason: err.Error()}
		}
		return &m, nil
	case TypeClear:
		return &Clear{}, nil
	case TypePing:
		return &Ping{}, nil
	case "":
		return nil, &DecodeError{Reason: "missing type field"}
	default:
		return &Unknown{TypeName: env.Type}, nil
	}
}

// --- Server → client ---

// PeerSettings pairs a peer identity with its current settings, used in the
// welcome snapshot.
type PeerSettings struct {
	ClientID string   `json:"clientId"`
	Settings Settings `json:"settings"`
}

// Metadata wraps the settings block attached to membership events.
type Metadata struct {
	Settings Settings `json:"settings"`
}

// Welcome assigns the new client its identity and a snapshot of every other
// live peer's settings.
type Welcome struct {
	Type        string         `json:"type"`
	ClientID    string         `json:"clientId"`
	ClientCount int            `json:"clientCount"`
	Metadata    Metadata       `json:"metadata"`
	AllSettings []PeerSettings `json:"allSettings"`
}

func (Welcome) MessageType() string { return TypeWelcome }

func NewWelcome(clientID string, count int, own Settings, peers []PeerSettings) Welcome {
	if peers == nil {
		peers = []PeerSettings{}
	}
	return Welcome{
		Type:        TypeWelcome,
		ClientID:    clientID,
		ClientCount: count,
		Metadata:    Metadata{Settings: own},
		AllSettings: peers,
	}
}

// ClientJoined announces a new registry member.
type ClientJoined struct {
	Type        string   `json:"type"`
	ClientID    string   `json:"clientId"`
	ClientCount int      `json:"clientCount"`
	Metadata    Metadata `json:"metadata"`
}

func (ClientJoined) MessageType() string { return TypeClientJoined }

func NewClientJoined(clientID string, count int, settings Settings) ClientJoined {
	return ClientJoined{
		Type:        TypeClientJoined,
		ClientID:    clientID,
		ClientCount: count,
		Metadata:    Metadata{Settings: settings},
	}
}

// ClientLeft announces a departed registry member.
type ClientLeft struct {
	Type        string `json:"type"`
	ClientID    string `json:"clientId"`
	ClientCount int    `json:"clientCount"`
}

func (ClientLeft) MessageType() string { return TypeClientLeft }

func NewClientLeft(clientID string, count int) ClientLeft {
	return ClientLeft{Type: TypeClientLeft, ClientID: clientID, ClientCount: count}
}

// TrailEvent is a relayed trail point, stamped with the sender's identity,
// sanitized settings, and a server timestamp in milliseconds.
type TrailEvent struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId"`
	Trail     Point  `json:"trail"`
	Settings
	Timestamp int64 `json:"timestamp"`
}

func (TrailEvent) MessageType() string { return TypeLightTrail }

func NewTrailEvent(clientID string, p Point, s Settings, ts int64) TrailEvent {
	return TrailEvent{
		Type:      TypeLightTrail,
		ClientID:  clientID,
		Trail:     p,
		Settings:  s,
		Timestamp: ts,
	}
}

// CursorEvent is a relayed cursor sample.
type CursorEvent struct {
	Type     string  `json:"type"`
	ClientID string  `json:"clientId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Settings
	Timestamp int64 `json:"timestamp"`
}

func (CursorEvent) MessageType() string { return TypeMousePosition }

func NewCursorEvent(clientID string, x, y float64, s Settings, ts int64) CursorEvent {
	return CursorEvent{
		Type:      TypeMousePosition,
		ClientID:  clientID,
		X:         x,
		Y:         y,
		Settings:  s,
		Timestamp: ts,
	}
}

// ClearEvent is a relayed canvas wipe.
type ClearEvent struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

func (ClearEvent) MessageType() string { return TypeClear }

func NewClearEvent(clientID string) ClearEvent {
	return ClearEvent{Type: TypeClear, ClientID: clientID}
}

// UserSettings informs peers of another client's reconciled settings.
type UserSettings struct {
	Type     string   `json:"type"`
	ClientID string   `json:"clientId"`
	Settings Settings `json:"settings"`
}

func (UserSettings) MessageType() string { return TypeUserSettings }

func NewUserSettings(clientID string, s Settings) UserSettings {
	return UserSettings{Type: TypeUserSettings, ClientID: clientID, Settings: s}
}

// SettingsAck echoes the authoritative record back to the sender.
type SettingsAck struct {
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
}

func (SettingsAck) MessageType() string { return TypeSettingsAck }

func NewSettingsAck(s Settings) SettingsAck {
	return SettingsAck{Type: TypeSettingsAck, Settings: s}
}

// Pong answers an application-level ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func (Pong) MessageType() string { return TypePong }

func NewPong(ts int64) Pong {
	return Pong{Type: TypePong, Timestamp: ts}
}

// ErrorEvent is sent to a single client whose payload could not be parsed.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ErrorEvent) MessageType() string { return TypeError }

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message}
}

// DecodeServer parses a server-originated message on the client side.
func DecodeServer(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}

	var (
		m   Message
		err error
	)

	switch env.Type {
	case TypeWelcome:
		var v Welcome
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeClientJoined:
		var v ClientJoined
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeClientLeft:
		var v ClientLeft
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeLightTrail:
		var v TrailEvent
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeMousePosition:
		var v CursorEvent
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeClear:
		var v ClearEvent
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeUserSettings:
		var v UserSettings
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeSettingsAck:
		var v SettingsAck
		err = json.Unmarshal(data, &v)
		m = &v
	case TypePong:
		var v Pong
		err = json.Unmarshal(data, &v)
		m = &v
	case TypeError:
		var v ErrorEvent
		err = json.Unmarshal(data, &v)
		m = &v
	case "":
		return nil, &DecodeError{Reason: "missing type field"}
	default:
		return &Unknown{TypeName: env.Type}, nil
	}

	if err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("%s: %v", env.Type, err)}
	}
	return m, nil
}

// Marshal serializes any outbound message exactly once for fan-out.
func Marshal(m any) ([]byte, error) {
	return json.Marshal(m)
}
