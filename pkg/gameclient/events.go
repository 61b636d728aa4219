package gameclient

// EventKind tags the variant carried by an Event
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventKicked       EventKind = "kicked"
	EventChat         EventKind = "chat"
	EventError        EventKind = "error"
	EventTelemetry    EventKind = "telemetry"
	EventDeath        EventKind = "death"
	EventRespawn      EventKind = "respawn"
	EventPlayerJoined EventKind = "player_joined"
	EventPlayerLeft   EventKind = "player_left"
)

// Position is a block position in the world
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Telemetry is the last known state of the bot in the world
type Telemetry struct {
	Health      float64  `json:"health"`
	Food        float64  `json:"food"`
	Position    Position `json:"position"`
	Dimension   string   `json:"dimension,omitempty"`
	ServerBrand string   `json:"serverBrand,omitempty"`
	PlayerCount int      `json:"playerCount,omitempty"`
}

// Event is a tagged notification from a Conn. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind
	// Reason is set for Disconnected and Kicked.
	Reason string
	// Sender and Text are set for Chat.
	Sender string
	Text   string
	// Player is set for PlayerJoined and PlayerLeft.
	Player string
	// Err is set for Error.
	Err error
	// Telemetry is set for Telemetry and Connected.
	Telemetry *Telemetry
}

// Connected reports a successful spawn in the world
func Connected(t *Telemetry) Event { return Event{Kind: EventConnected, Telemetry: t} }

// Disconnected reports that the connection ended, with an optional reason
func Disconnected(reason string) Event { return Event{Kind: EventDisconnected, Reason: reason} }

// Kicked reports that the server removed the bot
func Kicked(reason string) Event { return Event{Kind: EventKicked, Reason: reason} }

// Chat reports a chat message
func Chat(sender, text string) Event { return Event{Kind: EventChat, Sender: sender, Text: text} }

// Failure reports a connection-level error
func Failure(err error) Event { return Event{Kind: EventError, Err: err} }

// Update reports new telemetry
func Update(t Telemetry) Event { return Event{Kind: EventTelemetry, Telemetry: &t} }
