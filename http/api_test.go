package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/irk72ag/StarDrive/models"
	"github.com/irk72ag/StarDrive/qtree"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	store  *models.UniverseStore
	token  string
}

func newTestAPI(t *testing.T, auth *Authenticator) *testAPI {
	store := &models.UniverseStore{}
	api := API{
		Universes: store,
		DefaultConfig: models.UniverseConfig{
			UniverseSize: 10000,
			SmallestCell: 512,
		},
		Auth: auth,
	}

	var mux http.ServeMux
	api.Register(&mux)

	server := httptest.NewServer(&mux)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return &testAPI{
		t:      t,
		server: server,
		store:  store,
	}
}

// do sends a JSON request and decodes the JSON response into out when out is
// not nil. It returns the response status code.
func (a *testAPI) do(method, path string, body any, out any) int {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", ContentTypeJSON)
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer res.Body.Close()

	if out != nil {
		b, err := io.ReadAll(res.Body)
		require.NoError(a.t, err)
		require.NoError(a.t, json.Unmarshal(b, out), string(b))
	}
	return res.StatusCode
}

func (a *testAPI) createUniverse() models.UniverseInfo {
	var info models.UniverseInfo
	require.Equal(a.t, http.StatusCreated, a.do(http.MethodPost, "/universes", nil, &info))
	return info
}

func (a *testAPI) insert(universeID uint32, o objectRequest) int32 {
	var res insertObjectResponse
	require.Equal(a.t, http.StatusCreated, a.do(http.MethodPost, fmt.Sprintf("/universes/%d/objects", universeID), o, &res))
	return res.ObjectID
}

func TestAPIUniverses(t *testing.T) {
	api := newTestAPI(t, nil)

	info := api.createUniverse()
	require.Equal(t, uint32(1), info.ID)
	require.Equal(t, 6, info.Levels)
	require.Equal(t, float32(16384), info.FullSize)

	var custom models.UniverseInfo
	status := api.do(http.MethodPost, "/universes", createUniverseRequest{
		UniverseSize: 1000,
		SmallestCell: 100,
		Flags:        []string{"collide_recursive"},
	}, &custom)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, uint32(2), custom.ID)
	require.Equal(t, 5, custom.Levels)

	var infos []models.UniverseInfo
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/universes", nil, &infos))
	require.Len(t, infos, 2)

	var got models.UniverseInfo
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/universes/2", nil, &got))
	require.Equal(t, custom.UUID, got.UUID)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/universes/2", nil, nil))

	var errRes errorResponse
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/universes/2", nil, &errRes))
	require.Equal(t, models.ErrTypeUniverseNotFound, errRes.Type)

	require.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, "/universes/2", nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/universes/abc", nil, nil))

	status = api.do(http.MethodPost, "/universes", createUniverseRequest{UniverseSize: -1}, &errRes)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, models.ErrTypeInvalidUniverse, errRes.Type)
}

func TestAPICollisionScenario(t *testing.T) {
	api := newTestAPI(t, nil)
	info := api.createUniverse()
	base := fmt.Sprintf("/universes/%d", info.ID)

	a := api.insert(info.ID, objectRequest{Loyalty: 1, Type: qtree.TypeShip, X: 0, Y: 0, Radius: 10})
	b := api.insert(info.ID, objectRequest{Loyalty: 2, Type: qtree.TypeShip, X: 25, Y: 0, Radius: 10})
	require.Equal(t, int32(0), a)
	require.Equal(t, int32(1), b)

	var stats qtree.TreeStats
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/rebuild", nil, &stats))
	require.Equal(t, 2, stats.Items)

	var collisions collideResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/collide", timeStepRequest{TimeStep: 0.1}, &collisions))
	require.Empty(t, collisions.Collisions)
	require.Zero(t, collisions.Accepted)

	radius := float32(5)
	var nearby nearbyResponse
	status := api.do(http.MethodPost, base+"/nearby", nearbyRequest{SearchRadius: &radius}, &nearby)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []int32{a}, nearby.ObjectIDs)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodPut, fmt.Sprintf("%s/objects/%d", base, b), map[string]int32{"x": 15, "y": 0}, nil))

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/collide", timeStepRequest{TimeStep: 0.1}, &collisions))
	require.Empty(t, collisions.Collisions)

	var frame models.CollisionFrame
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/step", timeStepRequest{TimeStep: 0.1}, &frame))
	require.Equal(t, uint64(1), frame.Frame)
	require.Len(t, frame.Collisions, 1)
	require.ElementsMatch(t, []int32{a, b}, []int32{frame.Collisions[0].A, frame.Collisions[0].B})
}

func TestAPIObjects(t *testing.T) {
	api := newTestAPI(t, nil)
	info := api.createUniverse()
	base := fmt.Sprintf("/universes/%d", info.ID)

	id := api.insert(info.ID, objectRequest{Loyalty: 3, Type: qtree.TypeAsteroid, X: 100, Y: -100, Radius: 40})

	var o objectResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("%s/objects/%d", base, id), nil, &o))
	require.Equal(t, objectResponse{
		ID:      id,
		Active:  true,
		Loyalty: 3,
		Type:    qtree.TypeAsteroid,
		X:       100,
		Y:       -100,
		Radius:  40,
	}, o)

	x, y, radius := int32(1), int32(2), int32(12)
	status := api.do(http.MethodPut, fmt.Sprintf("%s/objects/%d", base, id), updateObjectRequest{X: &x, Y: &y, Radius: &radius}, nil)
	require.Equal(t, http.StatusNoContent, status)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("%s/objects/%d", base, id), nil, &o))
	require.Equal(t, int32(1), o.X)
	require.Equal(t, int32(2), o.Y)
	require.Equal(t, int32(12), o.Radius)

	radius = 30
	status = api.do(http.MethodPut, fmt.Sprintf("%s/objects/%d", base, id), map[string]int32{"radius": radius}, nil)
	require.Equal(t, http.StatusNoContent, status)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("%s/objects/%d", base, id), nil, &o))
	require.Equal(t, int32(1), o.X)
	require.Equal(t, int32(2), o.Y)
	require.Equal(t, int32(30), o.Radius)

	x = -7
	status = api.do(http.MethodPut, fmt.Sprintf("%s/objects/%d", base, id), updateObjectRequest{X: &x}, nil)
	require.Equal(t, http.StatusNoContent, status)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("%s/objects/%d", base, id), nil, &o))
	require.Equal(t, int32(-7), o.X)
	require.Equal(t, int32(2), o.Y)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, fmt.Sprintf("%s/objects/%d", base, id), nil, nil))
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("%s/objects/%d", base, id), nil, &o))
	require.False(t, o.Active)

	var errRes errorResponse
	require.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, fmt.Sprintf("%s/objects/%d", base, id), nil, &errRes))
	require.Equal(t, models.ErrTypeObjectNotFound, errRes.Type)

	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, base+"/objects/42", nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, base+"/objects/x", nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, base+"/objects", objectRequest{Radius: -1}, nil))

	require.Equal(t, http.StatusNoContent, api.do(http.MethodPost, base+"/clear", nil, nil))

	var got models.UniverseInfo
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, base, nil, &got))
	require.Zero(t, got.Objects)
}

func TestAPINearby(t *testing.T) {
	api := newTestAPI(t, nil)
	info := api.createUniverse()
	base := fmt.Sprintf("/universes/%d", info.ID)

	ship := api.insert(info.ID, objectRequest{Loyalty: 1, Type: qtree.TypeShip, X: 0, Y: 0, Radius: 10})
	beam := api.insert(info.ID, objectRequest{Loyalty: 2, Type: qtree.TypeBeam, X: 10, Y: 0, Radius: 1})
	removed := api.insert(info.ID, objectRequest{Loyalty: 2, Type: qtree.TypeShip, X: 0, Y: 10, Radius: 5})
	api.do(http.MethodPost, base+"/rebuild", nil, nil)
	api.do(http.MethodDelete, fmt.Sprintf("%s/objects/%d", base, removed), nil, nil)

	tests := []struct {
		name     string
		req      nearbyRequest
		expected []int32
	}{
		{
			name:     "defaults",
			req:      nearbyRequest{},
			expected: []int32{ship, beam, removed},
		},
		{
			name:     "only active",
			req:      nearbyRequest{OnlyActive: true},
			expected: []int32{ship, beam},
		},
		{
			name:     "exclude object",
			req:      nearbyRequest{FilterExcludeObjectID: &ship},
			expected: []int32{beam, removed},
		},
		{
			name:     "loyalty",
			req:      nearbyRequest{FilterIncludeOnlyByLoyalty: 2, OnlyActive: true},
			expected: []int32{beam},
		},
		{
			name:     "type",
			req:      nearbyRequest{FilterByType: qtree.TypeShip},
			expected: []int32{ship, removed},
		},
		{
			name:     "far away",
			req:      nearbyRequest{OriginX: 5000, OriginY: 5000},
			expected: []int32{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var res nearbyResponse
			require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/nearby", test.req, &res))
			require.ElementsMatch(t, test.expected, res.ObjectIDs)
		})
	}

	t.Run("invalid max results", func(t *testing.T) {
		zero := int32(0)

		var errRes errorResponse
		status := api.do(http.MethodPost, base+"/nearby", nearbyRequest{MaxResults: &zero}, &errRes)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, models.ErrTypeInvalidSearch, errRes.Type)
	})
}

func TestAPIVisualize(t *testing.T) {
	api := newTestAPI(t, nil)
	info := api.createUniverse()
	base := fmt.Sprintf("/universes/%d", info.ID)

	api.insert(info.ID, objectRequest{Loyalty: 1, Type: qtree.TypeShip, X: 0, Y: 0, Radius: 10})
	api.do(http.MethodPost, base+"/rebuild", nil, nil)

	var res visualizeResponse
	status := api.do(http.MethodPost, base+"/visualize", visualizeRequest{
		Left:   -100,
		Top:    -100,
		Right:  100,
		Bottom: 100,
	}, &res)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, res.Commands, 7)
	require.Equal(t, "rect", res.Commands[0].Op)
	require.Equal(t, float32(-8192), res.Commands[0].X1)

	status = api.do(http.MethodPost, base+"/visualize", visualizeRequest{
		Left:    -100,
		Top:     -100,
		Right:   100,
		Bottom:  100,
		Options: &visualizerOptionsRequest{ObjectText: true},
	}, &res)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, res.Commands, 2)
	require.Equal(t, "o=0", res.Commands[1].Text)

	require.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, base+"/visualize", nil, nil))
}

func TestAPIMsgpack(t *testing.T) {
	api := newTestAPI(t, nil)
	info := api.createUniverse()

	body, err := MarshalMsgpack(objectRequest{Loyalty: 1, Type: qtree.TypeShip, X: 5, Y: 6, Radius: 7})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/universes/%d/objects", api.server.URL, info.ID), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", ContentTypeMsgpack)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, ContentTypeMsgpack, res.Header.Get("Content-Type"))

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var inserted insertObjectResponse
	require.NoError(t, UnmarshalMsgpack(b, &inserted))
	require.Equal(t, int32(0), inserted.ObjectID)

	var o objectResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/universes/%d/objects/0", info.ID), nil, &o))
	require.Equal(t, int32(7), o.Radius)
}

func TestAPIAuth(t *testing.T) {
	auth := &Authenticator{Secret: []byte("test-secret")}
	api := newTestAPI(t, auth)

	var errRes errorResponse
	require.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/universes", nil, &errRes))
	require.Equal(t, ErrTypeUnauthorized, errRes.Type)

	token, err := auth.IssueToken("tester")
	require.NoError(t, err)
	api.token = token

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/universes", nil, nil))
}

func TestAPIPreflight(t *testing.T) {
	api := newTestAPI(t, &Authenticator{Secret: []byte("test-secret")})

	req, err := http.NewRequest(http.MethodOptions, api.server.URL+"/universes/1/nearby", nil)
	require.NoError(t, err)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}
