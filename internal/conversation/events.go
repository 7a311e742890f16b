package conversation

// Event is the typed stream a session Handle emits. Every implementation
// below is consumed by Controller.dispatch.
type Event interface {
	kind() string
}

// Connected reports that the remote side accepted the session.
type Connected struct {
	ConversationID string
}

// Disconnected reports that the session ended for any reason.
type Disconnected struct {
	Reason string
}

// Error reports a capability failure. Fatal errors end the session.
type Error struct {
	Message string
	Fatal   bool
}

// ModeChanged reports whether the agent is currently speaking.
type ModeChanged struct {
	Speaking bool
}

// FeedbackAvailability toggles whether the last agent response can be rated.
type FeedbackAvailability struct {
	Available bool
}

// Message is a transcript line from either side.
type Message struct {
	Source Source
	Text   string
}

func (Connected) kind() string            { return "connected" }
func (Disconnected) kind() string         { return "disconnected" }
func (Error) kind() string                { return "error" }
func (ModeChanged) kind() string          { return "mode" }
func (FeedbackAvailability) kind() string { return "feedback_availability" }
func (Message) kind() string              { return "message" }
