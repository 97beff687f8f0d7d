package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/irk72ag/StarDrive/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	publicEndpointLabel = "public_endpoint"
)

var (
	streamClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stream_connected_clients",
		Help: "The number of clients connected to a collision stream.",
	}, []string{publicEndpointLabel})

	streamSubscribeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_subscribe_errors",
		Help: "The errors that occured while subscribing a client to a universe.",
	}, []string{publicEndpointLabel, errTypeLabel})

	streamReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_received_msgs",
		Help: "The number of messages received from stream clients.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	streamReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_received_bytes",
		Help: "The number of bytes received from stream clients.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	streamReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_receive_errors",
		Help: "The errors that occured while receiving a stream message.",
	}, []string{publicEndpointLabel, errTypeLabel})

	streamSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_sent_msgs",
		Help: "The number of messages sent to stream clients.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	streamSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_sent_bytes",
		Help: "The number of bytes sent to stream clients.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	streamSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_send_errors",
		Help: "The errors that occured while sending a stream message.",
	}, []string{publicEndpointLabel, errTypeLabel, msgTypeLabel})

	streamDroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_dropped_frames",
		Help: "The number of collision frames dropped because a client was too slow.",
	}, []string{publicEndpointLabel})

	streamMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "stream_msg_latency",
		Help: "The time to handle a stream message.",
	}, []string{publicEndpointLabel, msgTypeLabel})
)

// HandlerWithMetrics decorates h with Prometheus metrics labeled with the
// given public endpoint.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	endpoint := prometheus.Labels{publicEndpointLabel: publicEndpoint}

	return &handlerWithMetrics{
		Handler:         h,
		clients:         streamClients.With(endpoint),
		droppedFrames:   streamDroppedFrames.With(endpoint),
		subscribeErrors: streamSubscribeErrors.MustCurryWith(endpoint),
		receivedMsgs:    streamReceivedMsgs.MustCurryWith(endpoint),
		receivedBytes:   streamReceivedBytes.MustCurryWith(endpoint),
		receiveErrors:   streamReceiveErrors.MustCurryWith(endpoint),
		sentMsgs:        streamSentMsgs.MustCurryWith(endpoint),
		sentBytes:       streamSentBytes.MustCurryWith(endpoint),
		sendErrors:      streamSendErrors.MustCurryWith(endpoint),
		msgLatency:      streamMsgLatency.MustCurryWith(endpoint),
	}
}

type handlerWithMetrics struct {
	Handler

	clients         prometheus.Gauge
	droppedFrames   prometheus.Counter
	subscribeErrors *prometheus.CounterVec
	receivedMsgs    *prometheus.CounterVec
	receivedBytes   *prometheus.CounterVec
	receiveErrors   *prometheus.CounterVec
	sentMsgs        *prometheus.CounterVec
	sentBytes       *prometheus.CounterVec
	sendErrors      *prometheus.CounterVec
	msgLatency      prometheus.ObserverVec
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	h.clients.Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleSubscribe(ctx context.Context, handleFrame func(models.CollisionFrame)) error {
	err := h.Handler.HandleSubscribe(ctx, handleFrame)
	if err != nil {
		h.subscribeErrors.WithLabelValues(errors.Type(err)).Inc()
	}
	return err
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, sender ResponseSender, msg Msg) error {
	defer h.observeLatency(msg.Type, time.Now())
	return h.Handler.HandlePing(ctx, sender, msg)
}

func (h *handlerWithMetrics) HandleStep(ctx context.Context, sender ResponseSender, msg Msg) error {
	defer h.observeLatency(msg.Type, time.Now())
	return h.Handler.HandleStep(ctx, sender, msg)
}

func (h *handlerWithMetrics) HandleInfo(ctx context.Context, sender ResponseSender, msg Msg) error {
	defer h.observeLatency(msg.Type, time.Now())
	return h.Handler.HandleInfo(ctx, sender, msg)
}

func (h *handlerWithMetrics) HandleFrameDropped(frame models.CollisionFrame) {
	h.droppedFrames.Inc()
	h.Handler.HandleFrameDropped(frame)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	h.clients.Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil {
			h.receiveErrors.WithLabelValues(errors.Type(err)).Inc()
		} else {
			h.receivedMsgs.WithLabelValues(msg.Type).Inc()
		}

		if n != 0 {
			h.receivedBytes.WithLabelValues(msg.Type).Add(float64(n))
		}
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	send := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := send(msg)
		if err != nil {
			h.sendErrors.With(prometheus.Labels{
				errTypeLabel: errors.Type(err),
				msgTypeLabel: msg.Type,
			}).Inc()
		}

		if n != 0 {
			h.sentMsgs.WithLabelValues(msg.Type).Inc()
			h.sentBytes.WithLabelValues(msg.Type).Add(float64(n))
		}
		return n, err
	}
}

func (h *handlerWithMetrics) observeLatency(msgType string, start time.Time) {
	h.msgLatency.WithLabelValues(msgType).Observe(time.Since(start).Seconds())
}
