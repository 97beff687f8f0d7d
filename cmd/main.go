package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/irk72ag/StarDrive/featureflag"
	sdhttp "github.com/irk72ag/StarDrive/http"
	"github.com/irk72ag/StarDrive/models"
	"github.com/irk72ag/StarDrive/smoketest"
	"github.com/irk72ag/StarDrive/snapshot"
	sdwebsocket "github.com/irk72ag/StarDrive/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The StarDrive version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "stardrive_info",
		Help:        "StarDrive information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string         `cli:""        env:"STARDRIVE_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string         `cli:""        env:"STARDRIVE_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string         `cli:""        env:"STARDRIVE_PUBLIC_ENDPOINT"      help:"The public endpoint where this StarDrive server is reachable."`
	LogLevel           string         `cli:""        env:"STARDRIVE_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool           `cli:""        env:"STARDRIVE_LOG_INDENT"           help:"Indent logs."`
	Universe           universeConfig `cli:""        env:"-"                              help:"Default universe configuration."`
	Auth               authConfig     `cli:""        env:"-"                              help:"Token authentication configuration."`
	Snapshot           snapshotConfig `cli:""        env:"-"                              help:"Universe snapshot configuration."`
	ClientIdleTimeout  time.Duration  `cli:",hidden" env:"STARDRIVE_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle stream client will be disconnected."`
	LogSummaryInterval time.Duration  `cli:",hidden" env:"STARDRIVE_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Events             eventsConfig   `cli:",hidden" env:"-"                              help:"Event pusher configuration."`
	FeatureFlags       []string       `cli:",hidden" env:"STARDRIVE_FEATURE_FLAGS"        help:"Comma separated feature flags applied to the default universe config."`
	Version            bool           `cli:""        env:"-"                              help:"Show version."`
	Help               bool           `cli:""        env:"-"                              help:"Show help."`
}

type universeConfig struct {
	Size          int           `cli:"" env:"STARDRIVE_UNIVERSE_SIZE"   help:"Width of the universes created without an explicit size."`
	SmallestCell  int           `cli:"" env:"STARDRIVE_SMALLEST_CELL"   help:"Width of the smallest quadrant of the universes created without an explicit one."`
	FrameDuration time.Duration `cli:"" env:"STARDRIVE_FRAME_DURATION"  help:"The duration of a universe frame. Universes are only stepped on request when 0."`
}

type authConfig struct {
	Secret     string        `cli:"" env:"STARDRIVE_AUTH_SECRET"      help:"The HS256 secret of the bearer tokens. Authentication is disabled when empty."`
	SecretFile string        `cli:"" env:"STARDRIVE_AUTH_SECRET_FILE" help:"The file that contains the HS256 secret of the bearer tokens."`
	TokenTTL   time.Duration `cli:"" env:"STARDRIVE_AUTH_TOKEN_TTL"   help:"The lifetime of issued tokens."`
	IssueToken string        `cli:"" env:"-"                          help:"Print a token for the given subject and exit."`
}

type snapshotConfig struct {
	Path     string        `cli:""        env:"STARDRIVE_SNAPSHOT_PATH"     help:"SQLite database where universes are saved. Universes are not persisted when empty."`
	Interval time.Duration `cli:",hidden" env:"STARDRIVE_SNAPSHOT_INTERVAL" help:"The duration between each save of the universes."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"STARDRIVE_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"STARDRIVE_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"STARDRIVE_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"STARDRIVE_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:           ":4000",
		AdminAddr:      ":18190",
		PublicEndpoint: "http://localhost:4000",
		LogLevel:       logs.InfoLevel.String(),
		Universe: universeConfig{
			Size:          100000,
			SmallestCell:  512,
			FrameDuration: time.Millisecond * 16,
		},
		Auth: authConfig{
			TokenTTL: time.Hour * 24,
		},
		Snapshot: snapshotConfig{
			Interval: time.Minute,
		},
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
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
		Help("Starts StarDrive server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	universeConf, err := validateConfig(conf)
	if err != nil {
		logs.Fatal(err)
	}

	secret, err := loadAuthSecret(conf)
	if err != nil {
		logs.Fatal(errors.New("error loading auth secret").Wrap(err))
	}

	auth := &sdhttp.Authenticator{
		Secret: secret,
		TTL:    conf.Auth.TokenTTL,
	}

	if conf.Auth.IssueToken != "" {
		token, err := auth.IssueToken(conf.Auth.IssueToken)
		if err != nil {
			logs.Fatal(err)
		}
		fmt.Println(token)
		os.Exit(0)
	}

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "stardrive",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	universes := &models.UniverseStore{}
	defer universes.Close()

	var snapshots *snapshot.Store
	if conf.Snapshot.Path != "" {
		snapshots, err = snapshot.Open(conf.Snapshot.Path)
		if err != nil {
			logs.Fatal(err)
		}
		defer snapshots.Close()

		restored, err := snapshots.RestoreAll(ctx, universes)
		if err != nil {
			logs.Fatal(errors.New("restoring universes failed").Wrap(err))
		}
		logs.WithTag("universes", restored).
			WithTag("path", conf.Snapshot.Path).
			Info("universes restored")

		go snapshots.StartSaving(ctx, universes, conf.Snapshot.Interval)
	}

	api := sdhttp.API{
		Universes:     universes,
		DefaultConfig: universeConf,
		Auth:          auth,
	}

	var service http.ServeMux
	api.Register(&service)

	service.Handle("/health", sdhttp.HandleWithCORS(http.HandlerFunc(sdhttp.HandleHealthCheck)))
	service.Handle("/version", sdhttp.HandleWithCORS(http.HandlerFunc(sdhttp.HandleVersion(version))))

	service.Handle("/smoke-test", sdhttp.VerifyAuthTokenHandler(auth, smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint: conf.PublicEndpoint,
		SendResult: func(ctx context.Context, res smoketest.SmokeTestResults) error {
			logs.WithTag("status", res.Status).
				WithTag("seed", res.Seed).
				WithTag("latency_ms", res.LatencyMilliSec).
				Info("smoke test completed")
			return nil
		},
	})))

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}
	service.Handle("/ready", sdhttp.HandleWithCORS(http.HandlerFunc(sdhttp.HandleReadyCheck(readinessCheck))))

	service.Handle("GET /universes/{id}/stream", sdhttp.HandleWithCORS(websocket.Server{
		Handshake: sdhttp.VerifyAuthToken(auth),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var sh sdwebsocket.Handler = &sdwebsocket.StreamHandler{
				Universes:         universes,
				ClientIdleTimeout: conf.ClientIdleTimeout,
			}
			h := sdwebsocket.HandlerWithLogs(sh, conf.LogSummaryInterval)
			h = sdwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			sdwebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", sdhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", sdhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("universe_size", universeConf.UniverseSize).
		WithTag("smallest_cell", universeConf.SmallestCell).
		WithTag("frame_duration", universeConf.FrameDuration).
		WithTag("auth", auth.Enabled()).
		Info("starting stardrive server")

	sdhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			sdhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	if snapshots != nil {
		// ctx is done at this point.
		if err := snapshots.SaveAll(context.Background(), universes); err != nil {
			logs.Warn(errors.New("saving universes on exit failed").Wrap(err))
		}
	}
}

func loadAuthSecret(conf config) ([]byte, error) {
	secret := conf.Auth.Secret

	if len(conf.Auth.SecretFile) != 0 {
		secretBytes, err := os.ReadFile(conf.Auth.SecretFile)
		if err != nil {
			return nil, errors.New("error loading auth secret from file").
				WithTag("file_name", conf.Auth.SecretFile).
				Wrap(err)
		}
		secret = string(secretBytes)
	}

	return []byte(strings.TrimSpace(secret)), nil
}

func validateConfig(conf config) (models.UniverseConfig, error) {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return models.UniverseConfig{}, errors.New("invalid public endpoint").Wrap(err)
	}

	if len(conf.Auth.Secret) != 0 &&
		len(conf.Auth.SecretFile) != 0 {
		return models.UniverseConfig{}, errors.New("have to specify either auth secret or auth secret file, not both")
	}

	universeConf := models.UniverseConfig{
		UniverseSize:  float32(conf.Universe.Size),
		SmallestCell:  float32(conf.Universe.SmallestCell),
		FrameDuration: conf.Universe.FrameDuration,
		Flags:         featureflag.New(conf.FeatureFlags),
	}
	if conf.Snapshot.Path != "" && conf.Snapshot.Interval <= 0 {
		return models.UniverseConfig{}, errors.New("snapshot interval must be positive")
	}

	if err := universeConf.Validate(); err != nil {
		return models.UniverseConfig{}, errors.New("invalid default universe config").Wrap(err)
	}

	return universeConf, nil
}
