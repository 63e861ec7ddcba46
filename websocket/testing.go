package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	hwebsocket "github.com/aukilabs/hagall-common/websocket"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules"
	"github.com/aukilabs/spatialtree/modules/dagaz"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const testPublicEndpoint = "https://spatialtree-test.com"

// NewTestingEnv creates a server running the handlers returned by newHandler
// and two clients connected to it. The returned function closes them.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
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

	server := newTestServer(newHandler)
	clientA := dialTestClient(t, server.URL)
	clientB := dialTestClient(t, server.URL)

	return clientA, clientB, func() {
		mutex.Lock()
		logger = nil
		mutex.Unlock()

		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

func newTestServer(newHandler func() Handler) *httptest.Server {
	return httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})
}

// dialTestClient connects a client identified by a fresh posemesh client id.
func dialTestClient(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()

	config, err := websocket.NewConfig(
		strings.Replace(serverURL, "http://", "ws://", 1),
		"http://localhost",
	)
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}

	config.Header.Set("User-Agent", "ted")
	config.Header.Set(httpcmn.XForwardedForHeaderKey, "192.0.0.0")
	config.Header.Set(httpcmn.HeaderPosemeshClientID, uuid.NewString())

	conn, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error dialing web socket: %s", err)
	}
	return conn
}

// testPartitionConfig is a 128 meter cube centered on the origin.
func testPartitionConfig() dagaz.PartitionConfig {
	return dagaz.PartitionConfig{
		Position:    mgl32.Vec3{-64, -64, -64},
		Size:        mgl32.Vec3{128, 128, 128},
		MinimumSize: mgl32.Vec3{1, 1, 1},
		Prune:       true,
	}
}

func newDagazTestModule() modules.Module {
	return &dagaz.Module{PartitionConfig: testPartitionConfig()}
}

func newTestHandler(newModule ...func() modules.Module) func() Handler {
	return newTestHandlerWithSessions(&models.SessionStore{ServerID: "ted"}, newModule...)
}

// newTestHandlerWithSessions returns handlers sharing the given sessions, each
// with its own instances of the modules.
func newTestHandlerWithSessions(sessions *models.SessionStore, newModule ...func() modules.Module) func() Handler {
	return func() Handler {
		mods := make([]modules.Module, 0, len(newModule))
		for _, nm := range newModule {
			mods = append(mods, nm())
		}

		return HandlerWithMetrics(
			HandlerWithLogs(&RealtimeHandler{
				ClientSyncClockInterval: time.Millisecond * 250,
				ClientIdleTimeout:       time.Minute,
				Sessions:                sessions,
				Modules:                 mods,
			}, time.Millisecond*100),
			testPublicEndpoint,
		)
	}
}

// recordingSender is a response sender keeping what it is asked to send.
type recordingSender struct {
	mutex sync.Mutex
	sent  []hwebsocket.ProtoMsg
}

func (s *recordingSender) Send(msg hwebsocket.ProtoMsg) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sent = append(s.sent, msg)
}

func (s *recordingSender) SendMsg(msg hwebsocket.Msg) {}

func (s *recordingSender) messages() []hwebsocket.ProtoMsg {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]hwebsocket.ProtoMsg(nil), s.sent...)
}
