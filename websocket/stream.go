package websocket

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"github.com/irk72ag/StarDrive/featureflag"
	httpcmn "github.com/irk72ag/StarDrive/http"
	"github.com/irk72ag/StarDrive/models"
	"golang.org/x/net/websocket"
)

// defaultTimeStep is used by step requests without a time step on
// universes that are only stepped explicitly.
const defaultTimeStep = float32(1) / 60

const defaultIdleTimeout = time.Minute

// StreamHandler streams the collision frames of a universe to a client.
//
// The universe is picked from the "id" path value of the connection
// request, so the handler is expected to be served behind a pattern such as
// "GET /universes/{id}/stream".
type StreamHandler struct {
	// The universes clients can subscribe to.
	Universes *models.UniverseStore

	// The time a client can stay without sending a message before being
	// disconnected.
	ClientIdleTimeout time.Duration

	conn        *websocket.Conn
	clientID    string
	universeID  string
	mutex       sync.Mutex
	universe    *models.Universe
	unsubscribe func()
}

func (h *StreamHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	req := conn.Request()
	h.clientID = req.Header.Get(httpcmn.HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
	h.universeID = req.PathValue("id")
}

func (h *StreamHandler) HandleSubscribe(ctx context.Context, handleFrame func(models.CollisionFrame)) error {
	id, err := strconv.ParseUint(h.universeID, 10, 32)
	if err != nil {
		return errors.New("invalid universe id").
			WithType(models.ErrTypeUniverseNotFound).
			WithTag("universe_id", h.universeID).
			Wrap(err)
	}

	universe, err := h.Universes.Get(uint32(id))
	if err != nil {
		return err
	}

	if universe.Config().Flags.IsSet(featureflag.FlagDisableCollisionStream) {
		return errors.New("collision stream is disabled").
			WithType(ErrTypeStreamDisabled).
			WithTag("universe_id", universe.ID)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.universe = universe
	h.unsubscribe = universe.HandleFrame(handleFrame)
	return nil
}

func (h *StreamHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:      MsgTypePong,
		RequestID: msg.RequestID,
	})
	return nil
}

// HandleStep steps the universe. The resulting frame reaches the client
// through its subscription.
func (h *StreamHandler) HandleStep(ctx context.Context, respond ResponseSender, msg Msg) error {
	universe := h.CurrentUniverse()
	if universe == nil {
		respond.Send(ErrorMsgFrom(msg.RequestID, h.notSubscribed()))
		return nil
	}

	timeStep := msg.TimeStep
	if timeStep <= 0 {
		timeStep = defaultTimeStep
		if d := universe.Config().FrameDuration; d > 0 {
			timeStep = float32(d.Seconds())
		}
	}

	universe.Step(timeStep)
	return nil
}

func (h *StreamHandler) HandleInfo(ctx context.Context, respond ResponseSender, msg Msg) error {
	universe := h.CurrentUniverse()
	if universe == nil {
		respond.Send(ErrorMsgFrom(msg.RequestID, h.notSubscribed()))
		return nil
	}

	info := universe.Info()
	respond.Send(Msg{
		Type:      MsgTypeInfo,
		RequestID: msg.RequestID,
		Info:      &info,
	})
	return nil
}

func (h *StreamHandler) HandleFrameDropped(frame models.CollisionFrame) {
}

func (h *StreamHandler) HandleDisconnect(err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

func (h *StreamHandler) Receiver() Receiver {
	return NewReceiver(h.conn)
}

func (h *StreamHandler) Sender() Sender {
	return NewSender(h.conn)
}

func (h *StreamHandler) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.universe = nil
}

func (h *StreamHandler) IdleTimeout() time.Duration {
	if h.ClientIdleTimeout <= 0 {
		return defaultIdleTimeout
	}
	return h.ClientIdleTimeout
}

func (h *StreamHandler) CurrentUniverse() *models.Universe {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.universe
}

func (h *StreamHandler) GetClientID() string {
	return h.clientID
}

func (h *StreamHandler) notSubscribed() error {
	return errors.New("client is not subscribed to a universe").
		WithType(ErrTypeNotSubscribed).
		WithTag("universe_id", h.universeID)
}
