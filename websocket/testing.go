package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	httpcmn "github.com/irk72ag/StarDrive/http"
	"github.com/irk72ag/StarDrive/models"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// TestingEnv is a server streaming the universes of a store, used to unit
// test handlers.
type TestingEnv struct {
	Universes *models.UniverseStore

	t      *testing.T
	server *httptest.Server
}

// NewTestingEnv creates a testing environement serving the handlers
// returned by newHandler at /universes/{id}/stream.
func NewTestingEnv(t *testing.T, newHandler func(*models.UniverseStore) Handler) (*TestingEnv, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	env := newTestingEnv(t, newHandler)
	return env, func() {
		mutex.Lock()
		logger = nil
		mutex.Unlock()

		env.close()
	}
}

func newTestingEnv(t *testing.T, newHandler func(*models.UniverseStore) Handler) *TestingEnv {
	universes := &models.UniverseStore{}

	var mux http.ServeMux
	mux.Handle("GET /universes/{id}/stream", websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler(universes)
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	return &TestingEnv{
		Universes: universes,
		t:         t,
		server:    httptest.NewServer(&mux),
	}
}

// Dial connects a client to the stream of the given universe.
func (e *TestingEnv) Dial(universeID uint32) *websocket.Conn {
	config, err := websocket.NewConfig(
		fmt.Sprintf("%s/universes/%d/stream", strings.ReplaceAll(e.server.URL, "http://", "ws://"), universeID),
		"http://localhost",
	)
	if err != nil {
		e.t.Fatalf("error initializing web socket: %s", err)
	}

	config.Header.Set("User-Agent", "ted")
	config.Header.Set("X-Forwarded-For", "192.0.0.0")
	config.Header.Set(httpcmn.HeaderClientID, uuid.NewString())

	conn, err := websocket.DialConfig(config)
	if err != nil {
		e.t.Fatalf("error dialing web socket: %s", err)
	}
	e.t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

func (e *TestingEnv) close() {
	e.server.Close()
	e.Universes.Close()
}

// SendMsg sends a message from a client connection.
func SendMsg(t *testing.T, conn *websocket.Conn, msg Msg) {
	if _, err := NewSender(conn)(msg); err != nil {
		t.Fatalf("error sending message: %s", err)
	}
}

// ReceiveMsg waits for the next message of the given type on a client
// connection, skipping the others.
func ReceiveMsg(t *testing.T, conn *websocket.Conn, msgType string) (Msg, error) {
	receive := NewReceiver(conn)
	conn.SetReadDeadline(time.Now().Add(time.Second * 2))
	defer conn.SetReadDeadline(time.Time{})

	for {
		msg, _, err := receive()
		if err != nil {
			return Msg{}, err
		}
		if msg.Type == msgType {
			return msg, nil
		}
		t.Logf("skipping %s message", msg.Type)
	}
}

func newTestHandler(idleTimeout time.Duration) func(*models.UniverseStore) Handler {
	return func(universes *models.UniverseStore) Handler {
		var h Handler = &StreamHandler{
			Universes:         universes,
			ClientIdleTimeout: idleTimeout,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://stardrive-test.com")
		return h
	}
}
