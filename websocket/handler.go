package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/irk72ag/StarDrive/models"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
	frameChanSize   = 64
)

// Handler represents a collision stream handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Subscribes the client to the frames of the universe it connected to.
	// handleFrame is called on the stepping goroutine and must not block.
	HandleSubscribe(ctx context.Context, handleFrame func(models.CollisionFrame)) error

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to step the universe.
	HandleStep(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request for the state of the universe.
	HandleInfo(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a frame that was dropped because the client is too slow.
	HandleFrameDropped(frame models.CollisionFrame)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender used to send messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// The universe the client is subscribed to.
	CurrentUniverse() *models.Universe

	GetClientID() string
}

// Handle handles the given connection until the client disconnects or ctx
// is done.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The stream handler.
	Handler Handler

	sendChan       chan Msg
	receiveChan    chan Msg
	frameChan      chan models.CollisionFrame
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	h.sender = h.Handler.Sender()
	h.frameChan = make(chan models.CollisionFrame, frameChanSize)

	err := h.Handler.HandleSubscribe(ctx, func(frame models.CollisionFrame) {
		select {
		case h.frameChan <- frame:
		default:
			h.Handler.HandleFrameDropped(frame)
		}
	})
	if err != nil {
		h.sender(ErrorMsgFrom(0, err))
		h.handleDisconnect(errors.New("subscribing to universe failed").Wrap(err))
		return
	}

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{send: h.send}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.handleDisconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case frame := <-h.frameChan:
			responder.Send(Msg{
				Type:  MsgTypeFrame,
				Frame: &frame,
			})

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(msg Msg) {
	select {
	case h.sendChan <- msg:
	default:
		logs.WithTag(logs.ClientIDTag, h.Handler.GetClientID()).
			WithTag("msg_type", msg.Type).
			Debug("send queue is full, message dropped")
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if errors.Type(err) == ErrTypeUnknownMsg {
			h.send(ErrorMsgFrom(0, err))
			continue
		}
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	var err error

	switch msg.Type {
	case MsgTypePing:
		err = h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeStep:
		err = h.Handler.HandleStep(ctx, responder, msg)

	case MsgTypeInfo:
		err = h.Handler.HandleInfo(ctx, responder, msg)

	default:
		responder.Send(ErrorMsgFrom(msg.RequestID, errors.New("unknown message type").
			WithType(ErrTypeUnknownMsg).
			WithTag("msg_type", msg.Type)))
	}

	return err
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(Msg)
}

func (r responseSender) Send(msg Msg) {
	r.send(msg)
}
