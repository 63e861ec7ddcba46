package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/aukilabs/spatialtree/modules"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	moduleLabel         = "module"
	publicEndpointLabel = "public_endpoint"
	appKeyLabel         = "app_key"
	resultLabel         = "result"

	defaultModule = "spatialtree"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{publicEndpointLabel, appKeyLabel})

	wsMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_msgs",
		Help: "The number of WebSocket messages by direction.",
	}, []string{publicEndpointLabel, "direction", msgTypeLabel, appKeyLabel})

	wsBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_bytes",
		Help: "The number of WebSocket bytes by direction.",
	}, []string{publicEndpointLabel, "direction", msgTypeLabel, appKeyLabel})

	wsErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_errors",
		Help: "The errors that occurred while receiving or sending WebSocket messages.",
	}, []string{publicEndpointLabel, "direction", errTypeLabel, appKeyLabel})

	wsParticipantJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_participant_joins",
		Help: "The number of session join requests by result.",
	}, []string{publicEndpointLabel, resultLabel, appKeyLabel})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{publicEndpointLabel, msgTypeLabel, moduleLabel})

	wsQuadSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_dagaz_quad_samples",
		Help: "The number of quads received in sample messages.",
	}, []string{publicEndpointLabel, appKeyLabel})

	wsRegionQuads = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_dagaz_region_quads",
		Help:    "The number of quads returned by a region request.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{publicEndpointLabel})

	wsGroundPlanes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_dagaz_ground_planes",
		Help: "The number of ground plane requests by result.",
	}, []string{publicEndpointLabel, resultLabel})
)

const (
	received = "received"
	sent     = "sent"
)

func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	return &handlerWithMetrics{
		Handler:        h,
		publicEndpoint: publicEndpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	appKey         string
	publicEndpoint string
}

// labels returns the labels of the connection followed by the given
// name/value pairs.
func (h *handlerWithMetrics) labels(pairs ...string) prometheus.Labels {
	l := prometheus.Labels{
		publicEndpointLabel: h.publicEndpoint,
		appKeyLabel:         h.appKey,
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		l[pairs[i]] = pairs[i+1]
	}
	return l
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	req := conn.Request()
	h.appKey = httpcmn.GetAppKeyFromHagallUserToken(httpcmn.GetUserTokenFromHTTPRequest(req))

	wsConnectedClients.With(h.labels()).Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.With(h.labels()).Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	return h.measureLatency(msg, defaultModule, func() error {
		return h.Handler.HandlePing(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleParticipantJoin(ctx context.Context, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	return h.measureLatency(msg, defaultModule, func() error {
		err := h.Handler.HandleParticipantJoin(ctx, sender, msg)

		result := "joined"
		if err != nil {
			result = "failed"
		} else if h.CurrentSession() == nil {
			result = "rejected"
		}
		wsParticipantJoins.With(h.labels(resultLabel, result)).Inc()
		return err
	})
}

func (h *handlerWithMetrics) HandleWithModule(ctx context.Context, module modules.Module, sender hwebsocket.ResponseSender, msg hwebsocket.Msg) error {
	if dagazpb.MsgType(msg.Type.Number()) == dagazpb.MsgType_MSG_TYPE_DAGAZ_QUAD_SAMPLE {
		var sample dagazpb.DagazQuadSample
		if err := msg.DataTo(&sample); err == nil {
			wsQuadSamples.With(h.labels()).Add(float64(len(sample.Samples)))
		}
	}

	return h.measureLatency(msg, module.Name(), func() error {
		return h.Handler.HandleWithModule(ctx, module, dagazResponseSender{
			ResponseSender: sender,
			publicEndpoint: h.publicEndpoint,
		}, msg)
	})
}

func (h *handlerWithMetrics) SendSyncClock(ctx context.Context, sender hwebsocket.ResponseSender) error {
	return h.measureLatency(hwebsocket.Msg{Type: hagallpb.MsgType_MSG_TYPE_SYNC_CLOCK}, defaultModule, func() error {
		return h.Handler.SendSyncClock(ctx, sender)
	})
}

func (h *handlerWithMetrics) Receiver() hwebsocket.Receiver {
	receive := h.Handler.Receiver()

	return func() (hwebsocket.Msg, int, error) {
		msg, n, err := receive()
		h.count(received, msg, n, err)
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() hwebsocket.Sender {
	send := h.Handler.Sender()

	return func(msg hwebsocket.Msg) (int, error) {
		n, err := send(msg)
		h.count(sent, msg, n, err)
		return n, err
	}
}

func (h *handlerWithMetrics) count(direction string, msg hwebsocket.Msg, n int, err error) {
	if err != nil {
		wsErrors.With(h.labels("direction", direction, errTypeLabel, errors.Type(err))).Inc()
	}
	if n == 0 {
		return
	}

	l := h.labels("direction", direction, msgTypeLabel, msg.TypeString())
	wsMsgs.With(l).Inc()
	wsBytes.With(l).Add(float64(n))
}

func (h *handlerWithMetrics) measureLatency(msg hwebsocket.Msg, module string, f func() error) error {
	start := time.Now()

	err := f()
	if errors.IsType(err, hwebsocket.ErrTypeMsgSkip) {
		return err
	}

	wsMsgLatency.With(prometheus.Labels{
		publicEndpointLabel: h.publicEndpoint,
		msgTypeLabel:        msg.TypeString(),
		moduleLabel:         module,
	}).Observe(time.Since(start).Seconds())
	return err
}

// dagazResponseSender records what the dagaz responses sent to a client
// contain.
type dagazResponseSender struct {
	hwebsocket.ResponseSender

	publicEndpoint string
}

func (s dagazResponseSender) Send(msg hwebsocket.ProtoMsg) {
	switch res := msg.(type) {
	case *dagazpb.DagazGetRegionResponse:
		wsRegionQuads.
			With(prometheus.Labels{publicEndpointLabel: s.publicEndpoint}).
			Observe(float64(len(res.Quads)))

	case *dagazpb.DagazGetGroundPlaneResponse:
		result := "miss"
		if e := res.GetGround().GetExtents(); e.GetX() != 0 || e.GetY() != 0 || e.GetZ() != 0 {
			result = "hit"
		}
		wsGroundPlanes.
			With(prometheus.Labels{
				publicEndpointLabel: s.publicEndpoint,
				resultLabel:         result,
			}).
			Inc()
	}

	s.ResponseSender.Send(msg)
}
