package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/aukilabs/hagall-common/messages/hagallpb"
	"github.com/aukilabs/hagall-common/scenario"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/aukilabs/spatialtree/models"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestHandlerSendSyncClock(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler())
	defer close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := scenario.NewScenario(clientA).
		Receive(scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_SYNC_CLOCK), func(msg hwebsocket.Msg) error {
			var res hagallpb.SyncClock
			err := msg.DataTo(&res)

			require.NoError(t, err)
			require.NotZero(t, msg.Time)
			return err
		}).
		Run(ctx)
	require.NoError(t, err)
}

func TestHandlerHandlePing(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler())
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
			scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PING_RESPONSE),
			scenario.FilterByRequestID(1),
		).
		Run(ctx)
	require.NoError(t, err)
}

func newJoinRequest(requestID uint32, sessionID string) func() hwebsocket.ProtoMsg {
	return func() hwebsocket.ProtoMsg {
		return &hagallpb.ParticipantJoinRequest{
			Type:      hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_REQUEST,
			Timestamp: timestamppb.Now(),
			RequestId: requestID,
			SessionId: sessionID,
		}
	}
}

func TestHandlerHandleParticipantJoin(t *testing.T) {
	t.Run("join a new session then join it from another client", func(t *testing.T) {
		sessions := &models.SessionStore{ServerID: "ted"}
		clientA, clientB, close := NewTestingEnv(t, newTestHandlerWithSessions(sessions))
		defer close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		var joinA hagallpb.ParticipantJoinResponse
		err := scenario.NewScenario(clientA).
			Send(newJoinRequest(1, "")).
			Receive(
				scenario.FilterByRequestID(1),
				scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_RESPONSE),
				func(msg hwebsocket.Msg) error {
					return msg.DataTo(&joinA)
				},
			).
			Run(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, joinA.SessionId)
		require.NotEmpty(t, joinA.SessionUuid)
		require.Equal(t, uint32(1), joinA.ParticipantId)

		var joinB hagallpb.ParticipantJoinResponse
		err = scenario.NewScenario(clientB).
			Send(func() hwebsocket.ProtoMsg {
				return newJoinRequest(1, joinA.SessionId)()
			}).
			Receive(
				scenario.FilterByRequestID(1),
				scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_RESPONSE),
				func(msg hwebsocket.Msg) error {
					return msg.DataTo(&joinB)
				},
			).
			Run(ctx)
		require.NoError(t, err)
		require.Equal(t, joinA.SessionId, joinB.SessionId)
		require.Equal(t, joinA.SessionUuid, joinB.SessionUuid)
		require.Equal(t, uint32(2), joinB.ParticipantId)

		session, ok := sessions.GetByGlobalID(joinA.SessionId)
		require.True(t, ok)
		require.Equal(t, 2, session.ParticipantCount())
	})

	t.Run("join an unknown session", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler())
		defer close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := scenario.NewScenario(clientA).
			Send(newJoinRequest(1, "tedx42")).
			Receive(
				scenario.FilterByRequestID(1),
				scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_ERROR_RESPONSE),
				func(msg hwebsocket.Msg) error {
					var res hagallpb.ErrorResponse
					if err := msg.DataTo(&res); err != nil {
						return err
					}
					require.Equal(t, hagallpb.ErrorCode_ERROR_CODE_NOT_FOUND, res.Code)
					return nil
				},
			).
			Run(ctx)
		require.NoError(t, err)
	})

	t.Run("join an already joined session", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler())
		defer close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		var sessionID string
		err := scenario.NewScenario(clientA).
			Send(newJoinRequest(1, "")).
			Receive(
				scenario.FilterByRequestID(1),
				scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_RESPONSE),
				func(msg hwebsocket.Msg) error {
					var res hagallpb.ParticipantJoinResponse
					if err := msg.DataTo(&res); err != nil {
						return err
					}
					sessionID = res.SessionId
					return nil
				},
			).
			Send(func() hwebsocket.ProtoMsg {
				return newJoinRequest(2, sessionID)()
			}).
			Receive(
				scenario.FilterByRequestID(2),
				scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_ERROR_RESPONSE),
				func(msg hwebsocket.Msg) error {
					var res hagallpb.ErrorResponse
					if err := msg.DataTo(&res); err != nil {
						return err
					}
					require.Equal(t, hagallpb.ErrorCode_ERROR_CODE_SESSION_ALREADY_JOINED, res.Code)
					return nil
				},
			).
			Run(ctx)
		require.NoError(t, err)
	})
}

func TestHandlerLeaveSession(t *testing.T) {
	t.Run("session is removed when its last participant leaves", func(t *testing.T) {
		sessions := &models.SessionStore{ServerID: "ted"}
		clientA, _, close := NewTestingEnv(t, newTestHandlerWithSessions(sessions))
		defer close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		var sessionID string
		err := scenario.NewScenario(clientA).
			Send(newJoinRequest(1, "")).
			Receive(
				scenario.FilterByRequestID(1),
				scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_RESPONSE),
				func(msg hwebsocket.Msg) error {
					var res hagallpb.ParticipantJoinResponse
					if err := msg.DataTo(&res); err != nil {
						return err
					}
					sessionID = res.SessionId
					return nil
				},
			).
			Run(ctx)
		require.NoError(t, err)

		_, ok := sessions.GetByGlobalID(sessionID)
		require.True(t, ok)

		clientA.Close()
		require.Eventually(t, func() bool {
			_, ok := sessions.GetByGlobalID(sessionID)
			return !ok
		}, time.Second, time.Millisecond*10)
	})

	t.Run("persistent session is kept", func(t *testing.T) {
		sessions := &models.SessionStore{ServerID: "ted"}
		session := models.NewSession(sessions.NewID())
		session.Persistent = true
		require.NoError(t, sessions.Add(context.Background(), session))
		sessionID := sessions.GlobalSessionID(session.ID)

		clientA, _, close := NewTestingEnv(t, newTestHandlerWithSessions(sessions))
		defer close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := scenario.NewScenario(clientA).
			Send(newJoinRequest(1, sessionID)).
			Receive(
				scenario.FilterByRequestID(1),
				scenario.FilterByType(hagallpb.MsgType_MSG_TYPE_PARTICIPANT_JOIN_RESPONSE),
			).
			Run(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, session.ParticipantCount())

		clientA.Close()
		require.Eventually(t, func() bool {
			return session.ParticipantCount() == 0
		}, time.Second, time.Millisecond*10)

		_, ok := sessions.GetByGlobalID(sessionID)
		require.True(t, ok)
	})
}
