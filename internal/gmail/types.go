package gmail

const (
	// DefaultListCount is used when no count is requested.
	DefaultListCount = 15

	// MaxListCount bounds the number of messages listed per request.
	MaxListCount = 50

	// DefaultConcurrency bounds in-flight metadata requests during List.
	DefaultConcurrency = 8

	unknownSender = "Unknown"
	noSubject     = "(No subject)"
)

// MessageSummary is one entry of the inbox list.
type MessageSummary struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

// MessageDetail is a single message with its decoded body.
// Content holds the plain text body, else the HTML body, else the snippet.
type MessageDetail struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// ClampCount maps a requested list size into [1, MaxListCount].
// Zero and negative values select DefaultListCount.
func ClampCount(count int) int {
	switch {
	case count <= 0:
		return DefaultListCount
	case count > MaxListCount:
		return MaxListCount
	default:
		return count
	}
}
