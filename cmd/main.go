package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/spatialtree/featureflag"
	stthttp "github.com/aukilabs/spatialtree/http"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/modules"
	"github.com/aukilabs/spatialtree/modules/dagaz"
	stwebsocket "github.com/aukilabs/spatialtree/websocket"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The spatialtree version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "spatialtree_info",
		Help:        "Spatialtree server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string          `cli:""        env:"SPATIALTREE_ADDR"                  help:"Listening address for client connections."`
	AdminAddr          string          `cli:""        env:"SPATIALTREE_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint     string          `cli:""        env:"SPATIALTREE_PUBLIC_ENDPOINT"       help:"The public endpoint where this server is reachable."`
	ServerID           string          `cli:""        env:"SPATIALTREE_SERVER_ID"             help:"The prefix of the session ids generated by this server."`
	AuthToken          string          `cli:""        env:"SPATIALTREE_AUTH_TOKEN"            help:"The token clients must present. Empty disables authorization."`
	LogLevel           string          `cli:""        env:"SPATIALTREE_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool            `cli:""        env:"SPATIALTREE_LOG_INDENT"            help:"Indent logs."`
	SyncClockInterval  time.Duration   `cli:",hidden" env:"SPATIALTREE_SYNC_CLOCK_INTERVAL"   help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration   `cli:",hidden" env:"SPATIALTREE_CLIENT_IDLE_TIMEOUT"   help:"Time until an idle client will be disconnected"`
	LogSummaryInterval time.Duration   `cli:",hidden" env:"SPATIALTREE_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary by connection."`
	ShutdownTimeout    time.Duration   `cli:",hidden" env:"SPATIALTREE_SHUTDOWN_TIMEOUT"      help:"The time given to requests in flight to complete on shutdown."`
	Partition          partitionConfig `cli:""        env:"-"                                 help:"Spatial partition configuration."`
	Events             eventsConfig    `cli:",hidden" env:"-"                                 help:"Event pusher configuration."`
	FeatureFlags       []string        `cli:",hidden" env:"SPATIALTREE_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool            `cli:""        env:"-"                                 help:"Show version."`
	Help               bool            `cli:""        env:"-"                                 help:"Show help."`
}

type partitionConfig struct {
	Size         float64 `cli:"" env:"SPATIALTREE_PARTITION_SIZE"          help:"The edge length of the cubic space partitioned for each session, centered on the origin."`
	MinimumSize  float64 `cli:"" env:"SPATIALTREE_PARTITION_MINIMUM_SIZE"  help:"The edge length under which a partition node is not split."`
	Prune        bool    `cli:"" env:"SPATIALTREE_PARTITION_PRUNE"         help:"Collapse the partition nodes left empty by a removal."`
	MergeEpsilon float64 `cli:"" env:"SPATIALTREE_PARTITION_MERGE_EPSILON" help:"The maximum height difference between two merged quads."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"SPATIALTREE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Empty disables events."`
	FlushInterval time.Duration `cli:",hidden" env:"SPATIALTREE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"SPATIALTREE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"SPATIALTREE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func (c partitionConfig) dagazConfig(flags featureflag.FeatureFlag) dagaz.PartitionConfig {
	half := float32(c.Size / 2)
	minimum := float32(c.MinimumSize)

	return dagaz.PartitionConfig{
		Position:       mgl32.Vec3{-half, -half, -half},
		Size:           mgl32.Vec3{float32(c.Size), float32(c.Size), float32(c.Size)},
		MinimumSize:    mgl32.Vec3{minimum, minimum, minimum},
		Prune:          c.Prune,
		MergeEpsilon:   float32(c.MergeEpsilon),
		DisableMerging: flags.IsSet(featureflag.FlagDisableQuadMerging),
	}
}

func main() {
	defaultPartition := dagaz.DefaultPartitionConfig()

	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		ServerID:           "ted",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		ShutdownTimeout:    time.Second * 10,
		Partition: partitionConfig{
			Size:         float64(defaultPartition.Size.X()),
			MinimumSize:  float64(defaultPartition.MinimumSize.X()),
			Prune:        defaultPartition.Prune,
			MergeEpsilon: float64(defaultPartition.MergeEpsilon),
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts a spatialtree server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	partition := conf.Partition.dagazConfig(featureFlags)

	if err := validateConfig(conf, partition); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "spatialtree",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	sessions := models.SessionStore{
		ServerID: conf.ServerID,
	}

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	service := stthttp.Service{
		Version:         version,
		Sessions:        &sessions,
		PartitionConfig: partition,
		AuthToken:       conf.AuthToken,
		DisableDebug:    featureFlags.IsSet(featureflag.FlagDisableDebugEndpoint),
		Ready:           readinessCheck,
	}

	featureFlags.IfNotSet(featureflag.FlagDisableWebsocket, func() {
		service.Realtime = func(conn *websocket.Conn) {
			defer conn.Close()

			var h stwebsocket.Handler = &stwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				Sessions:                &sessions,
				Modules:                 newModules(partition),
				FeatureFlags:            featureFlags,
			}
			h = stwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = stwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			stwebsocket.Handle(ctx, conn, h)
		}
	})

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("modules", modules.Names(newModules(partition)...)).
		WithTag("partition_size", conf.Partition.Size).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting spatialtree server")

	stthttp.ListenAndServe(ctx, conf.ShutdownTimeout,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(service.Handler(),
			stthttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: stthttp.AdminHandler(readinessCheck)},
	)
}

func newModules(partition dagaz.PartitionConfig) []modules.Module {
	return []modules.Module{
		&dagaz.Module{PartitionConfig: partition},
	}
}

func validateConfig(conf config, partition dagaz.PartitionConfig) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.ServerID == "" {
		return errors.New("server id is empty")
	}

	for _, v := range []float64{conf.Partition.Size, conf.Partition.MinimumSize, conf.Partition.MergeEpsilon} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return errors.New("invalid partition config").
				WithTag("size", conf.Partition.Size).
				WithTag("minimum_size", conf.Partition.MinimumSize).
				WithTag("merge_epsilon", conf.Partition.MergeEpsilon)
		}
	}

	if _, err := dagaz.NewOctreePartition(partition); err != nil {
		return errors.New("invalid partition config").Wrap(err)
	}
	return nil
}
