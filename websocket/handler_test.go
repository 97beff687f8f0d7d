package websocket

import (
	"testing"
	"time"

	"github.com/irk72ag/StarDrive/featureflag"
	"github.com/irk72ag/StarDrive/models"
	"github.com/irk72ag/StarDrive/qtree"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestUniverse(t *testing.T, env *TestingEnv, flags ...string) *models.Universe {
	universe, err := env.Universes.New(models.UniverseConfig{
		UniverseSize: 10000,
		SmallestCell: 512,
		Flags:        featureflag.New(flags),
	})
	require.NoError(t, err)
	return universe
}

// waitSubscribed returns once the server handled a ping, which happens
// after the client subscription.
func waitSubscribed(t *testing.T, conn *websocket.Conn) {
	SendMsg(t, conn, Msg{Type: MsgTypePing, RequestID: 1})

	msg, err := ReceiveMsg(t, conn, MsgTypePong)
	require.NoError(t, err)
	require.Equal(t, uint32(1), msg.RequestID)
}

func TestHandlerHandlePing(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Minute))
	defer close()

	universe := newTestUniverse(t, env)
	conn := env.Dial(universe.ID)

	SendMsg(t, conn, Msg{Type: MsgTypePing, RequestID: 42})

	msg, err := ReceiveMsg(t, conn, MsgTypePong)
	require.NoError(t, err)
	require.Equal(t, uint32(42), msg.RequestID)
}

func TestHandlerHandleStep(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Minute))
	defer close()

	universe := newTestUniverse(t, env)
	a, err := universe.Insert(qtree.NewObject(1, qtree.TypeShip, 0, 0, 10))
	require.NoError(t, err)
	b, err := universe.Insert(qtree.NewObject(2, qtree.TypeShip, 15, 0, 10))
	require.NoError(t, err)

	conn := env.Dial(universe.ID)
	SendMsg(t, conn, Msg{Type: MsgTypeStep, TimeStep: 0.5})

	msg, err := ReceiveMsg(t, conn, MsgTypeFrame)
	require.NoError(t, err)
	require.NotNil(t, msg.Frame)
	require.Equal(t, universe.ID, msg.Frame.UniverseID)
	require.Equal(t, uint64(1), msg.Frame.Frame)
	require.Equal(t, float32(0.5), msg.Frame.TimeStep)
	require.Len(t, msg.Frame.Collisions, 1)
	require.ElementsMatch(t, []int32{a, b}, []int32{msg.Frame.Collisions[0].A, msg.Frame.Collisions[0].B})
}

func TestHandlerBroadcastFrames(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Minute))
	defer close()

	universe := newTestUniverse(t, env)
	clientA := env.Dial(universe.ID)
	clientB := env.Dial(universe.ID)
	waitSubscribed(t, clientA)
	waitSubscribed(t, clientB)

	universe.Step(0.1)
	universe.Step(0.1)

	for _, conn := range []*websocket.Conn{clientA, clientB} {
		msg, err := ReceiveMsg(t, conn, MsgTypeFrame)
		require.NoError(t, err)
		require.Equal(t, uint64(1), msg.Frame.Frame)

		msg, err = ReceiveMsg(t, conn, MsgTypeFrame)
		require.NoError(t, err)
		require.Equal(t, uint64(2), msg.Frame.Frame)
	}
}

func TestHandlerHandleInfo(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Minute))
	defer close()

	universe := newTestUniverse(t, env)
	_, err := universe.Insert(qtree.NewObject(1, qtree.TypeAsteroid, 100, 100, 50))
	require.NoError(t, err)

	conn := env.Dial(universe.ID)
	SendMsg(t, conn, Msg{Type: MsgTypeInfo, RequestID: 3})

	msg, err := ReceiveMsg(t, conn, MsgTypeInfo)
	require.NoError(t, err)
	require.Equal(t, uint32(3), msg.RequestID)
	require.NotNil(t, msg.Info)
	require.Equal(t, universe.UUID, msg.Info.UUID)
	require.Equal(t, 1, msg.Info.Objects)
	require.True(t, msg.Info.PendingChanges)
}

func TestHandlerUnknownMsg(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Minute))
	defer close()

	universe := newTestUniverse(t, env)
	conn := env.Dial(universe.ID)

	SendMsg(t, conn, Msg{Type: "warp", RequestID: 5})

	msg, err := ReceiveMsg(t, conn, MsgTypeError)
	require.NoError(t, err)
	require.Equal(t, uint32(5), msg.RequestID)
	require.Equal(t, ErrTypeUnknownMsg, msg.Error.Type)

	waitSubscribed(t, conn)
}

func TestHandlerSubscribeErrors(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Minute))
	defer close()

	disabled := newTestUniverse(t, env, string(featureflag.FlagDisableCollisionStream))

	tests := []struct {
		name       string
		universeID uint32
		errType    string
	}{
		{
			name:       "universe not found",
			universeID: 42,
			errType:    models.ErrTypeUniverseNotFound,
		},
		{
			name:       "stream disabled",
			universeID: disabled.ID,
			errType:    ErrTypeStreamDisabled,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conn := env.Dial(test.universeID)

			msg, err := ReceiveMsg(t, conn, MsgTypeError)
			require.NoError(t, err)
			require.Equal(t, test.errType, msg.Error.Type)

			_, err = ReceiveMsg(t, conn, MsgTypeFrame)
			require.Error(t, err)
		})
	}
}

func TestHandlerIdleTimeout(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Millisecond*50))
	defer close()

	universe := newTestUniverse(t, env)
	conn := env.Dial(universe.ID)

	start := time.Now()
	_, err := ReceiveMsg(t, conn, MsgTypeFrame)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestHandlerUnsubscribeOnDisconnect(t *testing.T) {
	env, close := NewTestingEnv(t, newTestHandler(time.Minute))
	defer close()

	universe := newTestUniverse(t, env)
	conn := env.Dial(universe.ID)
	waitSubscribed(t, conn)
	require.Equal(t, 1, universe.Subscribers())

	conn.Close()

	require.Eventually(t, func() bool {
		return universe.Subscribers() == 0
	}, time.Second, time.Millisecond*10)
}
