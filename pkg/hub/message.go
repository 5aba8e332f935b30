// Package hub provides a websocket broadcast hub using channel-based
// fan-out. The dashboard runs one hub per stream.
package hub

import "github.com/gofiber/contrib/websocket"

// MessageType is the payload encoding of a broadcast.
type MessageType int

const (
	JSONMessage   MessageType = iota // status and event snapshots
	BinaryMessage                    // annotated JPEG frames
)

// Message is one broadcast payload. Data is shared by every client and
// must not be modified after Broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps a binary payload.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// opcode is the websocket frame type the message is written with.
func (m Message) opcode() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
