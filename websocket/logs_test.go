package websocket

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules/dagaz"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) func() string {
	var mutex sync.Mutex
	var b strings.Builder

	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()
		fmt.Fprint(&b, e)
	})

	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		out := b.String()
		t.Log(out)
		return out
	}
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&RealtimeHandler{clientID: testClientID}, time.Hour).(*handlerWithLogs)
	defer h.Close()

	h.mutex.Lock()
	h.received["test-1"] = 2
	h.received["test-2"] = 1
	h.sent = 4
	h.quadSamples = 7
	h.mutex.Unlock()

	output := captureLogs(t)
	h.logSummary()
	require.Empty(t, h.received)
	require.Zero(t, h.sent)
	require.Zero(t, h.quadSamples)

	logString := output()
	require.Contains(t, logString, `"test-1":2`)
	require.Contains(t, logString, `"test-2":1`)
	require.Contains(t, logString, `"sent":4`)
	require.Contains(t, logString, `"quad_samples":7`)
	require.Contains(t, logString, fmt.Sprintf(`"%s":"%s"`, logs.ClientIDTag, testClientID))
	require.NotContains(t, logString, "partition_quads")
}

func TestHandlerWithLogsLogSummaryWithPartition(t *testing.T) {
	sessions := &models.SessionStore{ServerID: "ted"}
	session := models.NewSession(sessions.NewID())
	session.AddParticipant(&models.Participant{ID: session.NewParticipantID()})

	state, err := dagaz.LoadState(session, dagaz.PartitionConfig{})
	require.NoError(t, err)
	require.NoError(t, state.SpatialPartition.InsertQuad(dagaz.NewQuad(mgl32.Vec3{}, mgl32.Vec3{1, 0, 1})))
	require.NoError(t, state.SpatialPartition.InsertQuad(dagaz.NewQuad(mgl32.Vec3{4, 0, 4}, mgl32.Vec3{1, 0, 1})))

	h := HandlerWithLogs(&RealtimeHandler{Sessions: sessions}, time.Hour).(*handlerWithLogs)
	defer h.Close()

	h.mutex.Lock()
	h.session = session
	h.sessionID = sessions.GlobalSessionID(session.ID)
	h.participantID = 1
	h.received["MSG_TYPE_DAGAZ_QUAD_SAMPLE"] = 1
	h.mutex.Unlock()

	output := captureLogs(t)
	h.logSummary()

	logString := output()
	require.Contains(t, logString, `"partition_quads":2`)
	require.Contains(t, logString, `"partition_merges":0`)
	require.Contains(t, logString, `"participant_count":1`)
	require.Contains(t, logString, session.SessionUUID)
	require.Contains(t, logString, sessions.GlobalSessionID(session.ID))
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&RealtimeHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// Summaries are skipped while nothing was received or sent.
	h.mutex.Lock()
	h.sent++
	h.mutex.Unlock()

	wg.Wait()
}

func TestNewHTTPHeaders(t *testing.T) {
	require.Equal(t, httpHeaders{}, newHTTPHeaders(nil))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("User-Agent", "ted")
	req.Header.Set(httpcmn.XForwardedForHeaderKey, "192.0.0.0")

	require.Equal(t, httpHeaders{
		UserAgent:     "ted",
		XForwardedFor: "192.0.0.0",
	}, newHTTPHeaders(req))
}
