package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/hagall-common/messages/hagallpb"
	"github.com/aukilabs/hagall-common/scenario"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type testModule struct {
	currentSession     *models.Session
	currentParticipant *models.Participant
	handledMsgs        []protoreflect.Enum
	skippedMsgs        []protoreflect.Enum
	onDisconnect       func()
}

func (m *testModule) Name() string {
	return "test-module"
}

func (m *testModule) Init(s *models.Session, p *models.Participant) {
	m.currentSession = s
	m.currentParticipant = p
}

func (m *testModule) HandleMsg(ctx context.Context, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	switch msg.Type {
	case hagallpb.MsgType_MSG_TYPE_PING_REQUEST:
		m.skippedMsgs = append(m.skippedMsgs, msg.Type)
		return hwebsocket.ErrModuleMsgSkip

	default:
		m.handledMsgs = append(m.handledMsgs, msg.Type)
		return nil
	}
}

func (m *testModule) HandleDisconnect() {
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}

func TestModule(t *testing.T) {
	var wg sync.WaitGroup
	var modA *testModule

	clientA, _, close := NewTestingEnv(t, newTestHandler(func() modules.Module {
		if modA == nil {
			wg.Add(1)
			modA = &testModule{
				onDisconnect: func() {
					wg.Done()
				},
			}
		}
		return modA
	}))
	defer close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := scenario.NewScenario(clientA).
		Send(func() hwebsocket.ProtoMsg {
			return &hagallpb.Request{
				Type:      hagallpb.MsgType_MSG_TYPE_PING_REQUEST,
				Timestamp: timestamppb.Now(),
				RequestId: 1,
			}
		}).
		Receive(
			scenario.FilterByRequestID(1),
			scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PING_RESPONSE),
		).
		Send(func() hwebsocket.ProtoMsg {
			return &hagallpb.ParticipantJoinRequest{
				Type:      hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_REQUEST,
				Timestamp: timestamppb.Now(),
				RequestId: 2,
			}
		}).
		Receive(
			scenario.FilterByRequestID(2),
			scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_RESPONSE),
		).
		Send(func() hwebsocket.ProtoMsg {
			return &hagallpb.Request{
				Type:      hagallpb.MsgType_MSG_TYPE_PING_REQUEST,
				Timestamp: timestamppb.Now(),
				RequestId: 3,
			}
		}).
		Receive(
			scenario.FilterByRequestID(3),
			scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PING_RESPONSE),
		).
		Run(ctx)
	require.NoError(t, err)

	clientA.Close()

	wg.Wait()
	require.NotNil(t, modA.currentSession)
	require.NotNil(t, modA.currentParticipant)

	// the ping sent before joining a session never reaches the module:
	require.Len(t, modA.handledMsgs, 1)
	require.Equal(t, hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_REQUEST, modA.handledMsgs[0])
	require.Len(t, modA.skippedMsgs, 1)
	require.Equal(t, hagallpb.MsgType_MSG_TYPE_PING_REQUEST, modA.skippedMsgs[0])
}
