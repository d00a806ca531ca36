package worker

import (
	"bytes"
	"encoding/json"
)

// MessageType discriminates control messages exchanged with a worker over
// its stdio channel.
type MessageType string

const (
	// Worker to supervisor.
	MessageReady MessageType = "ready"
	MessageError MessageType = "error"
	// Supervisor to worker.
	MessageReload   MessageType = "reload"
	MessageShutdown MessageType = "shutdown"
)

// Message is one control frame: a single JSON object on its own line.
type Message struct {
	Type  MessageType     `json:"type"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode renders the message as a newline-terminated JSON line.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ParseMessage reports whether line is a control frame. Anything that is not
// a JSON object carrying a known type is ordinary worker output and is left
// to the log capture path.
func ParseMessage(line []byte) (Message, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, false
	}
	var m Message
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return Message{}, false
	}
	switch m.Type {
	case MessageReady, MessageError, MessageReload, MessageShutdown:
		return m, true
	}
	return Message{}, false
}
