package http

import (
	"io"
	"net/http"
	"net/http/pprof"

	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules/dagaz"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

// Service is the public API of a spatialtree server.
type Service struct {
	Version string

	// The store shared by the HTTP and realtime clients.
	Sessions *models.SessionStore

	// The configuration of the partitions created for new sessions.
	PartitionConfig dagaz.PartitionConfig

	// The token clients must present. Empty disables authorization.
	AuthToken string

	// Stops serving the partition node dumps.
	DisableDebug bool

	// Serves the realtime connections accepted on /ws. Nil disables the
	// realtime endpoints.
	Realtime func(*websocket.Conn)

	// Reports whether the server accepts traffic. Nil means always.
	Ready func() bool
}

type statusResponse struct {
	Version      string `json:"version"`
	ServerID     string `json:"server_id"`
	Sessions     int    `json:"sessions"`
	Participants int    `json:"participants"`
	Quads        uint32 `json:"quads"`
	Merges       uint32 `json:"merges"`
}

// Handler returns the handler serving the routes of s. Every route answers
// CORS preflight requests.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealthCheck)
	mux.HandleFunc("GET /ready", handleReadyCheck(s.Ready))
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /status", s.handleStatus)

	sessions := VerifyAuthTokenHandler(s.AuthToken, &SessionHandler{
		Sessions:        s.Sessions,
		PartitionConfig: s.PartitionConfig,
		DisableDebug:    s.DisableDebug,
	})
	mux.Handle("/sessions", sessions)
	mux.Handle("/sessions/", sessions)

	if s.Realtime != nil {
		mux.Handle("/ws", websocket.Server{
			Handshake: VerifyAuthToken(s.AuthToken),
			Handler:   s.Realtime,
		})

		mux.Handle("/ping", websocket.Server{
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()
				io.Copy(conn, conn)
			},
		})
	}

	return HandleWithCORS(mux)
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.Version))
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	res := statusResponse{
		Version:  s.Version,
		ServerID: s.Sessions.ServerID,
	}

	for _, session := range s.Sessions.List() {
		res.Sessions++
		res.Participants += session.ParticipantCount()

		if state, ok := dagaz.ExistingState(session); ok {
			info := state.SpatialPartition.GetDebugInfo()
			res.Quads += info.PlaneCount
			res.Merges += info.MergeCount
		}
	}

	writeJSON(w, http.StatusOK, res)
}

// AdminHandler serves metrics and health checks next to the profiling
// endpoints. It must not be exposed publicly.
func AdminHandler(ready func() bool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealthCheck)
	mux.HandleFunc("/ready", handleReadyCheck(ready))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func handleReadyCheck(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
