package http

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules/dagaz"
	"github.com/segmentio/encoding/json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	contentTypeProtobuf = "application/x-protobuf"
	contentTypeJSON     = "application/json"

	maxBodySize = 4 << 20
)

// SessionHandler serves the HTTP API to manage sessions and feed or query
// their spatial data without a realtime connection.
type SessionHandler struct {
	// The store shared with the realtime handlers.
	Sessions *models.SessionStore

	// The configuration of the partitions created for new sessions.
	PartitionConfig dagaz.PartitionConfig

	// Stops serving the partition node dumps.
	DisableDebug bool

	muxOnce sync.Once
	mux     *http.ServeMux
}

type sessionResponse struct {
	SessionID        string `json:"session_id"`
	SessionUUID      string `json:"session_uuid"`
	Persistent       bool   `json:"persistent"`
	ParticipantCount int    `json:"participant_count"`
}

type sampleResponse struct {
	Inserted int      `json:"inserted"`
	Rejected int      `json:"rejected"`
	IDs      []uint64 `json:"ids,omitempty"`
}

type debugResponse struct {
	Resolution uint32            `json:"resolution"`
	NodeCount  uint32            `json:"node_count"`
	LeafCount  uint32            `json:"leaf_count"`
	MaxDepth   uint32            `json:"max_depth"`
	PlaneCount uint32            `json:"plane_count"`
	MergeCount uint32            `json:"merge_count"`
	Min        [3]float32        `json:"min"`
	Max        [3]float32        `json:"max"`
	Occupancy  []uint32          `json:"occupancy"`
	Nodes      []dagaz.DebugNode `json:"nodes"`
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.muxOnce.Do(func() {
		h.mux = h.routes()
	})
	h.mux.ServeHTTP(w, r)
}

func (h *SessionHandler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", h.handleList)
	mux.HandleFunc("POST /sessions", h.handleCreate)
	mux.HandleFunc("GET /sessions/{id}", h.withPartition(h.handleGet))
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDelete)
	mux.HandleFunc("POST /sessions/{id}/samples", h.withPartition(h.handleSamples))
	mux.HandleFunc("DELETE /sessions/{id}/samples", h.withPartition(h.handleClearSamples))
	mux.HandleFunc("POST /sessions/{id}/anchors", h.withPartition(h.handleAnchors))
	mux.HandleFunc("DELETE /sessions/{id}/quads/{quad}", h.withPartition(h.handleRemoveQuad))
	mux.HandleFunc("POST /sessions/{id}/region", h.withPartition(h.handleRegion))
	mux.HandleFunc("POST /sessions/{id}/ground", h.withPartition(h.handleGround))
	if !h.DisableDebug {
		mux.HandleFunc("GET /sessions/{id}/debug", h.withPartition(h.handleDebug))
	}
	return mux
}

type partitionHandlerFunc func(http.ResponseWriter, *http.Request, *models.Session, dagaz.SpatialPartition)

func (h *SessionHandler) withPartition(next partitionHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := h.Sessions.GetByGlobalID(r.PathValue("id"))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		state, err := dagaz.LoadState(session, h.PartitionConfig)
		if err != nil {
			httpcmn.InternalServerError(w, err)
			return
		}
		next(w, r, session, state.SpatialPartition)
	}
}

func (h *SessionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.Sessions.List()
	res := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		res[i] = h.sessionResponse(s)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	session := models.NewSession(h.Sessions.NewID())
	session.AppKey = httpcmn.GetAppKeyFromHagallUserToken(httpcmn.GetUserTokenFromHTTPRequest(r))
	session.Persistent = true

	// The partition is created upfront so an invalid configuration is
	// reported to the creator.
	if _, err := dagaz.LoadState(session, h.PartitionConfig); err != nil {
		httpcmn.InternalServerError(w, err)
		return
	}

	if err := h.Sessions.Add(r.Context(), session); err != nil {
		httpcmn.InternalServerError(w, err)
		return
	}

	logs.WithTag("session_id", h.Sessions.GlobalSessionID(session.ID)).
		WithTag("session_uuid", session.SessionUUID).
		Info("session created")

	writeJSON(w, http.StatusCreated, h.sessionResponse(session))
}

func (h *SessionHandler) handleGet(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	writeJSON(w, http.StatusOK, h.sessionResponse(s))
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	session, ok := h.Sessions.GetByGlobalID(r.PathValue("id"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Participants still connected keep working on their partition until they
	// leave.
	h.Sessions.Remove(context.WithoutCancel(r.Context()), session)

	logs.WithTag("session_id", r.PathValue("id")).
		WithTag("session_uuid", session.SessionUUID).
		WithTag("participant_count", session.ParticipantCount()).
		Info("session deleted")

	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleSamples(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	var req dagazpb.DagazQuadSample
	if err := readMessage(r, &req); err != nil {
		httpcmn.BadRequest(w, err)
		return
	}

	var res sampleResponse
	for _, q := range req.Samples {
		if err := p.InsertQuad(dagaz.NewQuadFromProtobuf(q)); err != nil {
			logs.WithTag("session_uuid", s.SessionUUID).Debug(err)
			res.Rejected++
			continue
		}
		res.Inserted++
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) handleClearSamples(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	p.ClearSamples()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleAnchors(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	var req dagazpb.DagazQuadSample
	if err := readMessage(r, &req); err != nil {
		httpcmn.BadRequest(w, err)
		return
	}

	var res sampleResponse
	for _, q := range req.Samples {
		id, err := p.InsertAnchor(dagaz.NewQuadFromProtobuf(q))
		if err != nil {
			logs.WithTag("session_uuid", s.SessionUUID).Debug(err)
			res.Rejected++
			continue
		}
		res.Inserted++
		res.IDs = append(res.IDs, id)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) handleRemoveQuad(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	id, err := strconv.ParseUint(r.PathValue("quad"), 10, 64)
	if err != nil {
		httpcmn.BadRequest(w, errors.New("invalid quad id").Wrap(err))
		return
	}

	if !p.RemoveQuad(id) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleRegion(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	var req dagazpb.DagazGetRegionRequest
	if err := readMessage(r, &req); err != nil {
		httpcmn.BadRequest(w, err)
		return
	}

	writeMessage(w, r, &dagazpb.DagazGetRegionResponse{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: req.RequestId,
		Quads:     dagaz.Region(p, &req),
	})
}

func (h *SessionHandler) handleGround(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	var req dagazpb.DagazGetGroundPlaneRequest
	if err := readMessage(r, &req); err != nil {
		httpcmn.BadRequest(w, err)
		return
	}

	writeMessage(w, r, &dagazpb.DagazGetGroundPlaneResponse{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: req.RequestId,
		Ground:    dagaz.GroundPlane(p, dagaz.NewRayFromProtobuf(req.Ray)),
	})
}

func (h *SessionHandler) handleDebug(w http.ResponseWriter, r *http.Request, s *models.Session, p dagaz.SpatialPartition) {
	info := p.GetDebugInfo()
	writeJSON(w, http.StatusOK, debugResponse{
		Resolution: info.Resolution,
		NodeCount:  info.NodeCount,
		LeafCount:  info.LeafCount,
		MaxDepth:   info.MaxDepth,
		PlaneCount: info.PlaneCount,
		MergeCount: info.MergeCount,
		Min:        info.MinPoint,
		Max:        info.MaxPoint,
		Occupancy:  info.Occupancy,
		Nodes:      p.DebugNodes(),
	})
}

func (h *SessionHandler) sessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{
		SessionID:        h.Sessions.GlobalSessionID(s.ID),
		SessionUUID:      s.SessionUUID,
		Persistent:       s.Persistent,
		ParticipantCount: s.ParticipantCount(),
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == contentTypeJSON
}

// readMessage decodes the request body as JSON when its content type says so,
// and as binary protobuf otherwise.
func readMessage(r *http.Request, m proto.Message) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.New("reading body failed").Wrap(err)
	}

	if isJSON(r.Header.Get("Content-Type")) {
		err = protojson.Unmarshal(b, m)
	} else {
		err = proto.Unmarshal(b, m)
	}
	if err != nil {
		return errors.New("decoding body failed").
			WithTag("content_type", r.Header.Get("Content-Type")).
			Wrap(err)
	}
	return nil
}

// writeMessage encodes m with the content type of the request.
func writeMessage(w http.ResponseWriter, r *http.Request, m proto.Message) {
	var b []byte
	var err error
	contentType := contentTypeProtobuf

	if isJSON(r.Header.Get("Content-Type")) {
		contentType = contentTypeJSON
		b, err = protojson.Marshal(m)
	} else {
		b, err = proto.Marshal(m)
	}
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	w.Write(b)
}
