package models

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TempPrefix marks message ids that exist only on the client. Server payloads
// carrying such an id are rejected.
const TempPrefix = "optimistic:"

// ChatMessage is one entry of a chat transcript.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

func (ChatMessage) EntityKind() Kind   { return KindChatMessage }
func (m ChatMessage) EntityID() string { return m.ID }
func (ChatMessage) sealed()            {}

// ChatSession is an append-only conversation scoped to a notebook.
type ChatSession struct {
	ID         string        `json:"id"`
	NotebookID string        `json:"notebook_id"`
	Title      string        `json:"title"`
	Messages   []ChatMessage `json:"messages"`
	Created    Timestamp     `json:"created_at"`
	Updated    Timestamp     `json:"updated_at"`
}

func (ChatSession) EntityKind() Kind   { return KindChatSession }
func (s ChatSession) EntityID() string { return s.ID }
func (ChatSession) sealed()            {}

// SendMessageRequest is the body of a send-message call. MessageID is the
// client-generated id the server stores for the user message.
type SendMessageRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"-"`
	SessionName string `json:"session_name,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

// ChatReply is the assistant message returned by a send-message call.
type ChatReply struct {
	ChatMessage
	SessionID string `json:"session_id"`
}

// WithoutSession returns a copy of list without the session with id.
func WithoutSession(list []ChatSession, id string) ([]ChatSession, bool) {
	out := make([]ChatSession, 0, len(list))
	found := false
	for _, s := range list {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	return out, found
}
