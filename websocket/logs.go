package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules"
	"github.com/aukilabs/spatialtree/modules/dagaz"
	"golang.org/x/net/websocket"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
	}
	handler.resetSummary()

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request
	appKey          string

	summaryInterval    time.Duration
	closeSummaryWorker func()

	// Guards the fields below, read by the summary worker.
	mutex         sync.Mutex
	session       *models.Session
	sessionID     string
	participantID uint32
	received      map[string]int
	sent          int
	quadSamples   int
}

type logTag struct {
	key   string
	value any
}

// connectionTags returns the tags locating the connection in its session.
func (h *handlerWithLogs) connectionTags() []logTag {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	tags := []logTag{{logs.SessionIDTag, h.sessionID}}
	if h.session != nil {
		tags = append(tags,
			logTag{"session_uuid", h.session.SessionUUID},
			logTag{logs.ParticipantIDTag, h.participantID},
		)
	}
	return tags
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	req := conn.Request()
	h.originalRequest = req
	h.appKey = httpcmn.GetAppKeyFromHagallUserToken(httpcmn.GetUserTokenFromHTTPRequest(req))

	logs.WithClientID(h.GetClientID()).
		WithTag(logs.AppKeyTag, h.appKey).
		WithTag("http_headers", newHTTPHeaders(req)).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleParticipantJoin(ctx context.Context, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	if err := h.Handler.HandleParticipantJoin(ctx, sender, msg); err != nil {
		return err
	}

	session := h.CurrentSession()
	if session == nil {
		var req hagallpb.ParticipantJoinRequest
		// Parsing already succeeded in the wrapped handler.
		msg.DataTo(&req)

		logs.WithClientID(h.GetClientID()).
			WithTag(logs.AppKeyTag, h.appKey).
			WithTag(logs.SessionIDTag, req.SessionId).
			WithTag("request_id", req.RequestId).
			Info("participant failed to join a session")
		return nil
	}

	h.mutex.Lock()
	h.session = session
	h.sessionID = h.GetSessions().GlobalSessionID(session.ID)
	h.participantID = h.CurrentParticipant().ID
	h.mutex.Unlock()

	entry := logs.WithClientID(h.GetClientID()).WithTag(logs.AppKeyTag, h.appKey)
	for _, t := range h.connectionTags() {
		entry = entry.WithTag(t.key, t.value)
	}
	entry.
		WithTag("persistent", session.Persistent).
		WithTag("participant_count", session.ParticipantCount()).
		Info("participant joined a session")
	return nil
}

type httpHeaders struct {
	UserAgent     string `json:"user_agent,omitempty"`
	XForwardedFor string `json:"x_forwarded_for,omitempty"`
}

func newHTTPHeaders(r *http.Request) httpHeaders {
	if r == nil {
		return httpHeaders{}
	}
	return httpHeaders{
		UserAgent:     r.UserAgent(),
		XForwardedFor: r.Header.Get(httpcmn.XForwardedForHeaderKey),
	}
}

func (h *handlerWithLogs) HandleWithModule(ctx context.Context, module modules.Module, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	err := h.Handler.HandleWithModule(ctx, module, sender, msg)
	if err != nil || dagazpb.MsgType(msg.Type.Number()) != dagazpb.MsgType_MSG_TYPE_DAGAZ_QUAD_SAMPLE {
		return err
	}

	var sample dagazpb.DagazQuadSample
	if msg.DataTo(&sample) == nil {
		h.mutex.Lock()
		h.quadSamples += len(sample.Samples)
		h.mutex.Unlock()
	}
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithClientID(h.GetClientID()).WithTag(logs.AppKeyTag, h.appKey)
	for _, t := range h.connectionTags() {
		entry = entry.WithTag(t.key, t.value)
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() hwebsocket.Receiver {
	receive := h.Handler.Receiver()

	return func() (hwebsocket.Msg, int, error) {
		msg, n, err := receive()
		if err != nil && (errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)) {
			return msg, n, err
		}

		entry := logs.WithClientID(h.GetClientID()).WithTag(logs.AppKeyTag, h.appKey)
		for _, t := range h.connectionTags() {
			entry = entry.WithTag(t.key, t.value)
		}

		if err != nil {
			entry.Error(errors.New("receiving message failed").Wrap(err))
			return msg, n, err
		}

		entry.WithTag("msg_type", msg.TypeString()).Debug("message received")

		h.mutex.Lock()
		h.received[msg.TypeString()]++
		h.mutex.Unlock()
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() hwebsocket.Sender {
	send := h.Handler.Sender()

	return func(msg hwebsocket.Msg) (int, error) {
		n, err := send(msg)
		if err != nil && errors.Is(err, net.ErrClosed) {
			return n, err
		}

		entry := logs.WithClientID(h.GetClientID()).
			WithTag(logs.AppKeyTag, h.appKey).
			WithTag("msg_type", msg.TypeString())
		for _, t := range h.connectionTags() {
			entry = entry.WithTag(t.key, t.value)
		}

		if err != nil {
			entry.Error(errors.New("sending message failed").Wrap(err))
			return n, err
		}

		entry.Debug("message sent")

		h.mutex.Lock()
		h.sent++
		h.mutex.Unlock()
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

func (h *handlerWithLogs) resetSummary() {
	h.received = make(map[string]int)
	h.sent = 0
	h.quadSamples = 0
}

// logSummary logs the traffic of the connection since the previous summary,
// with the state of the partition of its session.
func (h *handlerWithLogs) logSummary() {
	tags := h.connectionTags()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.received) == 0 && h.sent == 0 {
		return
	}

	entry := logs.WithClientID(h.GetClientID()).
		WithTag(logs.AppKeyTag, h.appKey).
		WithTag("time_interval", h.summaryInterval).
		WithTag("received", h.received).
		WithTag("sent", h.sent).
		WithTag("quad_samples", h.quadSamples)
	for _, t := range tags {
		entry = entry.WithTag(t.key, t.value)
	}

	if h.session != nil {
		entry = entry.WithTag("participant_count", h.session.ParticipantCount())

		if state, ok := dagaz.ExistingState(h.session); ok {
			info := state.SpatialPartition.GetDebugInfo()
			entry = entry.
				WithTag("partition_quads", info.PlaneCount).
				WithTag("partition_merges", info.MergeCount).
				WithTag("partition_nodes", info.NodeCount)
		}
	}

	entry.Info("connection summary")
	h.resetSummary()
}
