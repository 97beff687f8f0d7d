package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	httpcmn "github.com/irk72ag/StarDrive/http"
	"github.com/irk72ag/StarDrive/models"
	"golang.org/x/net/websocket"
)

// Message types exchanged on a collision stream.
const (
	MsgTypePing  = "ping"
	MsgTypePong  = "pong"
	MsgTypeStep  = "step"
	MsgTypeInfo  = "info"
	MsgTypeFrame = "frame"
	MsgTypeError = "error"
)

// Error types of the errors produced by stream handlers.
const (
	ErrTypeStreamDisabled = "stream_disabled"
	ErrTypeUnknownMsg     = "unknown_msg"
	ErrTypeNotSubscribed  = "not_subscribed"
)

// Msg is a msgpack encoded message sent in a binary WebSocket frame.
type Msg struct {
	Type      string                 `json:"type"`
	RequestID uint32                 `json:"request_id,omitempty"`
	TimeStep  float32                `json:"time_step,omitempty"`
	Frame     *models.CollisionFrame `json:"frame,omitempty"`
	Info      *models.UniverseInfo   `json:"info,omitempty"`
	Error     *ErrorMsg              `json:"error,omitempty"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorMsgFrom converts an error to a message that can be sent to a client.
func ErrorMsgFrom(requestID uint32, err error) Msg {
	return Msg{
		Type:      MsgTypeError,
		RequestID: requestID,
		Error: &ErrorMsg{
			Type:    errors.Type(err),
			Message: err.Error(),
		},
	}
}

// Receiver reads a message and returns it with the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender writes a message and returns the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender queues messages to be sent to the client.
type ResponseSender interface {
	Send(Msg)
}

// NewReceiver returns a receiver reading msgpack messages from conn.
func NewReceiver(conn *websocket.Conn) Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := httpcmn.UnmarshalMsgpack(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeUnknownMsg).
				Wrap(err)
		}
		return msg, len(b), nil
	}
}

// NewSender returns a sender writing msgpack messages to conn.
func NewSender(conn *websocket.Conn) Sender {
	return func(msg Msg) (int, error) {
		b, err := httpcmn.MarshalMsgpack(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(conn, b); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}
