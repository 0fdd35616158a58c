package domain

// Sender attributes a turn to one side of the conversation.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// TurnStatus is the lifecycle state of a turn.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnConfirmed TurnStatus = "confirmed"
	TurnFailed    TurnStatus = "failed"
)

// Turn is one message in the transcript.
type Turn struct {
	ID     string     `json:"id"`
	Sender Sender     `json:"sender"`
	Text   string     `json:"text"`
	Status TurnStatus `json:"status"`
}

// Record is the remote storage unit pairing a user message with its optional
// reply. An empty Reply means the record has no bot turn.
type Record struct {
	Message string `json:"message"`
	Reply   string `json:"reply,omitempty"`
}

// HasReply reports whether the record maps to a bot turn.
func (r Record) HasReply() bool {
	return r.Reply != ""
}
