package dagaz

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const moduleName = "dagaz"

// State is the dagaz state shared by the participants of a session.
type State struct {
	SpatialPartition SpatialPartition
}

func (s *State) Close() error {
	return s.SpatialPartition.Close()
}

// LoadState returns the dagaz state of the given session, creating its
// partition with c when the session has none.
func LoadState(s *models.Session, c PartitionConfig) (*State, error) {
	state, err := s.LoadOrInitModuleState(moduleName, func() (any, error) {
		partition, err := NewOctreePartition(c)
		if err != nil {
			return nil, err
		}
		return &State{SpatialPartition: partition}, nil
	})
	if err != nil {
		return nil, err
	}
	return state.(*State), nil
}

// ExistingState returns the dagaz state of the given session without creating
// it.
func ExistingState(s *models.Session) (*State, bool) {
	state, ok := s.ModuleState(moduleName)
	if !ok {
		return nil, false
	}

	st, ok := state.(*State)
	return st, ok
}

type Module struct {
	// The configuration of the partitions created for new sessions.
	PartitionConfig PartitionConfig

	currentSession     *models.Session
	currentParticipant *models.Participant
	state              *State
}

func (m *Module) Name() string {
	return moduleName
}

func (m *Module) Init(s *models.Session, p *models.Participant) {
	m.currentSession = s
	m.currentParticipant = p

	state, err := LoadState(s, m.PartitionConfig)
	if err != nil {
		logs.WithTag("session_uuid", s.SessionUUID).
			WithTag("participant_id", p.ID).
			Error(err)
		m.state = nil
		return
	}
	m.state = state
}

func (m *Module) HandleMsg(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var err error

	switch dagazpb.MsgType(msg.Type.Number()) {
	case dagazpb.MsgType_MSG_TYPE_DAGAZ_QUAD_SAMPLE:
		err = m.HandleDagazQuadSample(ctx, msg)

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_REQUEST:
		err = m.HandleDagazGetGroundPlane(ctx, respond, msg)

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_REQUEST:
		err = m.HandleDagazGetRegion(ctx, respond, msg)

	case dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_DEBUG_INFO_REQUEST:
		err = m.HandleDagazGetDebugInfo(ctx, respond, msg)

	default:
		err = hwebsocket.ErrModuleMsgSkip
	}

	return err
}

func (m *Module) HandleDisconnect() {
	m.currentSession = nil
	m.currentParticipant = nil
	m.state = nil
}

func (m *Module) partition(msg hwebsocket.Msg) (SpatialPartition, error) {
	if m.currentSession == nil {
		return nil, modules.ErrSessionNotJoined(msg)
	}
	if m.state == nil {
		return nil, errors.New("dagaz state is not initialized").
			WithTag("session_uuid", m.currentSession.SessionUUID).
			WithTag("msg_type", msg.Type)
	}
	return m.state.SpatialPartition, nil
}

func (m *Module) HandleDagazQuadSample(ctx context.Context, msg hwebsocket.Msg) error {
	var newQuadSample dagazpb.DagazQuadSample
	if err := msg.DataTo(&newQuadSample); err != nil {
		return err
	}

	partition, err := m.partition(msg)
	if err != nil {
		return err
	}

	for _, newQuad := range newQuadSample.Samples {
		if err := partition.InsertQuad(NewQuadFromProtobuf(newQuad)); err != nil {
			logs.WithTag("session_uuid", m.currentSession.SessionUUID).
				WithTag("participant_id", m.currentParticipant.ID).
				Warn(err)
		}
	}

	return nil
}

func (m *Module) HandleDagazGetGroundPlane(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var req dagazpb.DagazGetGroundPlaneRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	partition, err := m.partition(msg)
	if err != nil {
		return err
	}

	respond.Send(&dagazpb.DagazGetGroundPlaneResponse{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_GROUND_PLANE_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: req.RequestId,
		Ground:    GroundPlane(partition, NewRayFromProtobuf(req.Ray)),
	})
	return nil
}

// GroundPlane returns the quad hit by r. A zero quad is returned when nothing
// is hit.
func GroundPlane(p SpatialPartition, r Ray) *dagazpb.Quad {
	quadHit, _ := p.IntersectQuad(r)
	if quadHit == nil {
		quadHit = &Quad{}
	}
	return quadHit.ToProtobuf()
}

func (m *Module) HandleDagazGetRegion(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var req dagazpb.DagazGetRegionRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	partition, err := m.partition(msg)
	if err != nil {
		return err
	}

	respond.Send(&dagazpb.DagazGetRegionResponse{
		Type:      dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_REGION_RESPONSE,
		Timestamp: timestamppb.Now(),
		RequestId: req.RequestId,
		Quads:     Region(partition, &req),
	})
	return nil
}

// Region returns the quads overlapping the requested region.
func Region(p SpatialPartition, req *dagazpb.DagazGetRegionRequest) []*dagazpb.Quad {
	regionQuads := p.GetRegion(NewVec3FromProtobuf(req.Min), NewVec3FromProtobuf(req.Max))
	regionQuadsProtobuf := make([]*dagazpb.Quad, len(regionQuads))
	for i, q := range regionQuads {
		regionQuadsProtobuf[i] = q.ToProtobuf()
	}
	return regionQuadsProtobuf
}

func (m *Module) HandleDagazGetDebugInfo(ctx context.Context, respond hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	var req dagazpb.DagazGetDebugInfoRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	partition, err := m.partition(msg)
	if err != nil {
		return err
	}

	debugInfo := partition.GetDebugInfo()

	respond.Send(&dagazpb.DagazGetDebugInfoResponse{
		Type:           dagazpb.MsgType_MSG_TYPE_DAGAZ_GET_DEBUG_INFO_RESPONSE,
		Timestamp:      timestamppb.Now(),
		RequestId:      req.RequestId,
		GridResolution: debugInfo.Resolution,
		GridRowCount:   debugInfo.NodeCount,
		GridColCount:   debugInfo.LeafCount,
		GridPlaneCount: debugInfo.PlaneCount,
		GridMergeCount: debugInfo.MergeCount,
		GridMinPoint:   Vec3ToProtobuf(debugInfo.MinPoint),
		GridMaxPoint:   Vec3ToProtobuf(debugInfo.MaxPoint),
		Occupancy:      debugInfo.Occupancy,
	})
	return nil
}
