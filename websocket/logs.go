package websocket

import (
	"context"
	goerrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/irk72ag/StarDrive/models"
	"golang.org/x/net/websocket"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
	droppedFrames      int

	universeID   uint32
	universeUUID string
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	h.originalRequest = conn.Request()

	logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("path", h.originalRequest.URL.Path).
		WithTag("http_headers", struct {
			UserAgent     string `json:"user_agent,omitempty"`
			XForwardedFor string `json:"x_forwarded_for,omitempty"`
		}{
			UserAgent:     h.originalRequest.UserAgent(),
			XForwardedFor: h.originalRequest.Header.Get("X-Forwarded-For"),
		}).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleSubscribe(ctx context.Context, handleFrame func(models.CollisionFrame)) error {
	if err := h.Handler.HandleSubscribe(ctx, handleFrame); err != nil {
		logs.WithTag(logs.ClientIDTag, h.GetClientID()).
			WithTag("path", h.originalRequest.URL.Path).
			Info("client failed to subscribe to a universe")
		return err
	}

	universe := h.CurrentUniverse()
	h.universeID = universe.ID
	h.universeUUID = universe.UUID

	logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("universe_id", h.universeID).
		WithTag("universe_uuid", h.universeUUID).
		Info("client subscribed to a universe")
	return nil
}

func (h *handlerWithLogs) HandleFrameDropped(frame models.CollisionFrame) {
	h.Handler.HandleFrameDropped(frame)

	h.counterMutex.Lock()
	h.droppedFrames++
	h.counterMutex.Unlock()
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("universe_id", h.universeID).
		WithTag("universe_uuid", h.universeUUID)
	if err != nil && !goerrors.Is(err, context.Canceled) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !goerrors.Is(err, io.EOF) && !goerrors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("universe_id", h.universeID).
				WithTag("universe_uuid", h.universeUUID).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("universe_id", h.universeID).
				WithTag("universe_uuid", h.universeUUID).
				WithTag("msg_type", msg.Type).
				Debug("message received")
			h.incCounter(msg.Type)
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := sender(msg)
		if err != nil && !goerrors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("universe_id", h.universeID).
				WithTag("universe_uuid", h.universeUUID).
				WithTag("msg_type", msg.Type).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil && msg.Type != MsgTypeFrame {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("universe_id", h.universeID).
				WithTag("universe_uuid", h.universeUUID).
				WithTag("msg_type", msg.Type).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 && h.droppedFrames == 0 {
		return
	}

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("universe_id", h.universeID).
		WithTag("universe_uuid", h.universeUUID).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	if h.droppedFrames != 0 {
		entry = entry.WithTag("dropped_frames", h.droppedFrames)
		h.droppedFrames = 0
	}

	entry.Info("inbound message summary")
}
