package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/irk72ag/StarDrive/featureflag"
	"github.com/irk72ag/StarDrive/models"
	"github.com/irk72ag/StarDrive/qtree"
)

// API exposes the universes of a store over HTTP.
type API struct {
	Universes *models.UniverseStore

	// Config of the universes created without explicit sizes.
	DefaultConfig models.UniverseConfig

	// Verifies bearer tokens. Requests are not authenticated when nil.
	Auth *Authenticator
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /universes", a.handleListUniverses},
		{"POST /universes", a.handleCreateUniverse},
		{"GET /universes/{id}", a.handleGetUniverse},
		{"DELETE /universes/{id}", a.handleDeleteUniverse},
		{"POST /universes/{id}/objects", a.handleInsertObject},
		{"GET /universes/{id}/objects/{oid}", a.handleGetObject},
		{"PUT /universes/{id}/objects/{oid}", a.handleUpdateObject},
		{"DELETE /universes/{id}/objects/{oid}", a.handleRemoveObject},
		{"POST /universes/{id}/clear", a.handleClear},
		{"POST /universes/{id}/rebuild", a.handleRebuild},
		{"POST /universes/{id}/step", a.handleStep},
		{"POST /universes/{id}/collide", a.handleCollide},
		{"POST /universes/{id}/nearby", a.handleNearby},
		{"POST /universes/{id}/visualize", a.handleVisualize},
	}

	for _, r := range routes {
		mux.Handle(r.pattern, HandleWithCORS(VerifyAuthTokenHandler(a.Auth, r.handler)))
	}

	// Preflight requests.
	mux.Handle("OPTIONS /universes", HandleWithCORS(http.NotFoundHandler()))
	mux.Handle("OPTIONS /universes/", HandleWithCORS(http.NotFoundHandler()))
}

type createUniverseRequest struct {
	UniverseSize    float32  `json:"universe_size"`
	SmallestCell    float32  `json:"smallest_cell"`
	FrameDurationMS int64    `json:"frame_duration_ms"`
	Flags           []string `json:"flags"`
}

func (a *API) handleCreateUniverse(w http.ResponseWriter, r *http.Request) {
	var req createUniverseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	config := a.DefaultConfig
	if req.UniverseSize != 0 {
		config.UniverseSize = req.UniverseSize
	}
	if req.SmallestCell != 0 {
		config.SmallestCell = req.SmallestCell
	}
	if req.FrameDurationMS != 0 {
		config.FrameDuration = time.Duration(req.FrameDurationMS) * time.Millisecond
	}
	if req.Flags != nil {
		config.Flags = featureflag.New(req.Flags)
	}

	universe, err := a.Universes.New(config)
	if err != nil {
		writeError(w, r, err)
		return
	}

	encode(w, r, http.StatusCreated, universe.Info())
}

func (a *API) handleListUniverses(w http.ResponseWriter, r *http.Request) {
	universes := a.Universes.List()

	infos := make([]models.UniverseInfo, 0, len(universes))
	for _, u := range universes {
		infos = append(infos, u.Info())
	}

	encode(w, r, http.StatusOK, infos)
}

func (a *API) handleGetUniverse(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	encode(w, r, http.StatusOK, universe.Info())
}

func (a *API) handleDeleteUniverse(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint32(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := a.Universes.Remove(id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type objectRequest struct {
	Loyalty uint8            `json:"loyalty"`
	Type    qtree.ObjectType `json:"type"`
	X       int32            `json:"x"`
	Y       int32            `json:"y"`
	Radius  int32            `json:"radius"`
}

type objectResponse struct {
	ID      int32            `json:"id"`
	Active  bool             `json:"active"`
	Loyalty uint8            `json:"loyalty"`
	Type    qtree.ObjectType `json:"type"`
	X       int32            `json:"x"`
	Y       int32            `json:"y"`
	Radius  int32            `json:"radius"`
}

type insertObjectResponse struct {
	ObjectID int32 `json:"object_id"`
}

func (a *API) handleInsertObject(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req objectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := universe.Insert(qtree.NewObject(req.Loyalty, req.Type, req.X, req.Y, req.Radius))
	if err != nil {
		writeError(w, r, err)
		return
	}

	encode(w, r, http.StatusCreated, insertObjectResponse{ObjectID: id})
}

func (a *API) handleGetObject(w http.ResponseWriter, r *http.Request) {
	universe, id, err := a.object(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := universe.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	encode(w, r, http.StatusOK, objectResponse{
		ID:      o.ID,
		Active:  o.Active,
		Loyalty: o.Loyalty,
		Type:    o.Type,
		X:       o.X,
		Y:       o.Y,
		Radius:  o.Radius,
	})
}

// updateObjectRequest changes the fields that are set. An omitted
// coordinate keeps its current value.
type updateObjectRequest struct {
	X      *int32 `json:"x"`
	Y      *int32 `json:"y"`
	Radius *int32 `json:"radius"`
}

func (a *API) handleUpdateObject(w http.ResponseWriter, r *http.Request) {
	universe, id, err := a.object(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateObjectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Radius != nil {
		if err := universe.SetRadius(id, *req.Radius); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if req.X == nil && req.Y == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	o, err := universe.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.X != nil {
		o.X = *req.X
	}
	if req.Y != nil {
		o.Y = *req.Y
	}

	if err := universe.Update(id, o.X, o.Y); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveObject(w http.ResponseWriter, r *http.Request) {
	universe, id, err := a.object(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := universe.Remove(id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	universe.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRebuild(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	encode(w, r, http.StatusOK, universe.Rebuild())
}

type timeStepRequest struct {
	TimeStep float32 `json:"time_step"`
}

func (a *API) handleStep(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req timeStepRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	encode(w, r, http.StatusOK, universe.Step(req.TimeStep))
}

type collideResponse struct {
	Collisions []models.CollisionPair `json:"collisions"`
	Accepted   int                    `json:"accepted"`
}

func (a *API) handleCollide(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req timeStepRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	frame := universe.Collide(req.TimeStep)
	encode(w, r, http.StatusOK, collideResponse{
		Collisions: frame.Collisions,
		Accepted:   len(frame.Collisions),
	})
}

type nearbyRequest struct {
	OriginX                    float32          `json:"origin_x"`
	OriginY                    float32          `json:"origin_y"`
	SearchRadius               *float32         `json:"search_radius"`
	MaxResults                 *int32           `json:"max_results"`
	FilterByType               qtree.ObjectType `json:"filter_by_type"`
	FilterExcludeObjectID      *int32           `json:"filter_exclude_object_id"`
	FilterExcludeByLoyalty     uint8            `json:"filter_exclude_by_loyalty"`
	FilterIncludeOnlyByLoyalty uint8            `json:"filter_include_only_by_loyalty"`
	OnlyActive                 bool             `json:"only_active"`
}

func (req nearbyRequest) options() qtree.SearchOptions {
	opt := qtree.DefaultSearchOptions(req.OriginX, req.OriginY)
	if req.SearchRadius != nil {
		opt.SearchRadius = *req.SearchRadius
	}
	if req.MaxResults != nil {
		opt.MaxResults = *req.MaxResults
	}
	if req.FilterExcludeObjectID != nil {
		opt.FilterExcludeObjectID = *req.FilterExcludeObjectID
	}
	opt.FilterByType = req.FilterByType
	opt.FilterExcludeByLoyalty = req.FilterExcludeByLoyalty
	opt.FilterIncludeOnlyByLoyalty = req.FilterIncludeOnlyByLoyalty
	return opt
}

type nearbyResponse struct {
	ObjectIDs []int32 `json:"object_ids"`
}

func (a *API) handleNearby(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req nearbyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ids, err := universe.FindNearby(req.options(), req.OnlyActive)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if ids == nil {
		ids = []int32{}
	}
	encode(w, r, http.StatusOK, nearbyResponse{ObjectIDs: ids})
}

type visualizeRequest struct {
	Left    float32                   `json:"left"`
	Top     float32                   `json:"top"`
	Right   float32                   `json:"right"`
	Bottom  float32                   `json:"bottom"`
	Options *visualizerOptionsRequest `json:"options"`
}

type visualizerOptionsRequest struct {
	NodeBounds   bool `json:"node_bounds"`
	NodeText     bool `json:"node_text"`
	ObjectBounds bool `json:"object_bounds"`
	ObjectToLeaf bool `json:"object_to_leaf"`
	ObjectText   bool `json:"object_text"`
}

type visualizeResponse struct {
	Commands []DrawCommand `json:"commands"`
}

func (a *API) handleVisualize(w http.ResponseWriter, r *http.Request) {
	universe, err := a.universe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req visualizeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	visible := qtree.Rect{
		Left:   req.Left,
		Top:    req.Top,
		Right:  req.Right,
		Bottom: req.Bottom,
	}
	if visible.Width() <= 0 || visible.Height() <= 0 {
		writeError(w, r, errors.New("visible rectangle is empty").
			WithType(ErrTypeBadRequest).
			WithTag("visible", visible))
		return
	}

	opt := qtree.AllVisualizerOptions()
	if o := req.Options; o != nil {
		opt = qtree.VisualizerOptions{
			NodeBounds:   o.NodeBounds,
			NodeText:     o.NodeText,
			ObjectBounds: o.ObjectBounds,
			ObjectToLeaf: o.ObjectToLeaf,
			ObjectText:   o.ObjectText,
		}
	}

	var recorder DrawRecorder
	universe.Visualize(visible, opt, &recorder)

	encode(w, r, http.StatusOK, visualizeResponse{Commands: recorder.Commands})
}

func (a *API) universe(r *http.Request) (*models.Universe, error) {
	id, err := pathUint32(r, "id")
	if err != nil {
		return nil, err
	}
	return a.Universes.Get(id)
}

func (a *API) object(r *http.Request) (*models.Universe, int32, error) {
	universe, err := a.universe(r)
	if err != nil {
		return nil, 0, err
	}

	oid := r.PathValue("oid")
	id, err := strconv.ParseInt(oid, 10, 32)
	if err != nil {
		return nil, 0, errors.New("invalid object id").
			WithType(ErrTypeBadRequest).
			WithTag("object_id", oid).
			Wrap(err)
	}
	return universe, int32(id), nil
}

func pathUint32(r *http.Request, name string) (uint32, error) {
	v := r.PathValue(name)

	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.New("invalid path parameter").
			WithType(ErrTypeBadRequest).
			WithTag(name, v).
			Wrap(err)
	}
	return uint32(id), nil
}
