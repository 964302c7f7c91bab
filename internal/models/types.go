package models

// EventKind classifies an inbound chat interaction.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventCallback
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	case EventMessage:
		return "message"
	}
	return "unknown"
}

// Event is an interaction delivered by the chat gateway.
type Event struct {
	Kind   EventKind
	UserID int64
	ChatID int64

	// Command is set for EventCommand, without the leading slash; Args holds the payload.
	Command string
	Args    string

	// CallbackID and Data are set for EventCallback.
	CallbackID string
	Data       string

	// Text, PhotoRef and DocumentRef are set for EventMessage. The refs are opaque
	// handles to media already uploaded to the gateway.
	Text        string
	PhotoRef    string
	DocumentRef string
}

// Button is an inline keyboard button carrying either callback data or a URL.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Row is a convenience constructor for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Message is an outbound message. When PhotoRef is set Text is sent as its caption;
// DocumentRef messages carry no text.
type Message struct {
	ChatID      int64
	Text        string
	HTML        bool
	PhotoRef    string
	DocumentRef string
	Keyboard    Keyboard
}
