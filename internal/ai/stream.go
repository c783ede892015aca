package ai

type StreamEventType string

const (
	StreamToken StreamEventType = "token"
	StreamDone  StreamEventType = "done"
	StreamError StreamEventType = "error"
)

// StreamEvent is one item of a generation stream. Err is set on StreamError.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     error
}
