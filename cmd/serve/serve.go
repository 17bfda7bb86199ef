// Package serve runs the HTTP API and the analyzer pipeline.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birdnet-scout/internal/analysis"
	"github.com/tphakala/birdnet-scout/internal/api"
	"github.com/tphakala/birdnet-scout/internal/api/handlers"
	"github.com/tphakala/birdnet-scout/internal/birdnet"
	"github.com/tphakala/birdnet-scout/internal/buildinfo"
	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/datastore"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/geolocation"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/mqtt"
	"github.com/tphakala/birdnet-scout/internal/notification"
	"github.com/tphakala/birdnet-scout/internal/observability"
	"github.com/tphakala/birdnet-scout/internal/observability/metrics"
	"github.com/tphakala/birdnet-scout/internal/remote"
	"github.com/tphakala/birdnet-scout/internal/telemetry"
)

const (
	storeModeLocal  = "local"
	storeModeRemote = "remote"

	notificationTimeout = 10 * time.Second
	telemetryFlushWait  = 2 * time.Second
)

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the clip analyzer",
		Long:  "Serve the detection API and, when enabled, analyze clips as the recorder publishes them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings, build)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "HTTP listen port")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "api", viper.GetBool("webserver.enabled"), "Serve the HTTP API")
	cmd.Flags().BoolVar(&settings.Analyzer.Enabled, "analyzer", viper.GetBool("analyzer.enabled"), "Run the clip analyzer")
	cmd.Flags().StringVar(&settings.Analyzer.ClipDir, "clipdir", viper.GetString("analyzer.clipdir"), "Directory the recorder writes clips to")
	cmd.Flags().StringVar(&settings.Analyzer.Store, "store", viper.GetString("analyzer.store"), "Where the analyzer stores detections (local or remote)")
	cmd.Flags().StringVar(&settings.Analyzer.RemoteURL, "remote", viper.GetString("analyzer.remoteurl"), "Scout server URL for the remote store")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// services holds everything run starts, so shutdown can release it in
// reverse order.
type services struct {
	settings *conf.Settings
	metrics  *observability.Metrics
	store    datastore.Interface
	locator  *geolocation.Client
	server   *api.Server
	closers  []func()
}

func (s *services) onClose(f func()) {
	s.closers = append(s.closers, f)
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := logger.Global().Module("serve")

	if !settings.WebServer.Enabled && !settings.Analyzer.Enabled {
		return errors.Newf("nothing to run: both the API and the analyzer are disabled").
			Component("serve").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := telemetry.Init(settings, build.GetVersion()); err != nil {
		log.Warn("Error telemetry disabled", logger.Error(err))
	}
	defer telemetry.Flush(telemetryFlushWait)

	svc := &services{settings: settings}
	defer svc.close()

	if err := svc.setup(); err != nil {
		return err
	}

	var pipeline *analysis.Pipeline
	if settings.Analyzer.Enabled {
		p, err := svc.pipeline()
		if err != nil {
			return err
		}
		pipeline = p
	}

	g, gctx := errgroup.WithContext(ctx)
	if svc.server != nil {
		g.Go(func() error { return svc.server.Run(gctx) })
	}
	if pipeline != nil {
		g.Go(func() error { return pipeline.Run(gctx) })
	}

	log.Info("BirdNET-Scout started",
		logger.String("version", build.GetVersion()),
		logger.Bool("api", svc.server != nil),
		logger.Bool("analyzer", settings.Analyzer.Enabled),
		logger.String("store", settings.Analyzer.Store))

	err := g.Wait()
	log.Info("BirdNET-Scout stopped")
	return err
}

// localStore reports whether detections go to the local database.
func (s *services) localStore() bool {
	return s.settings.WebServer.Enabled || s.settings.Analyzer.Store == storeModeLocal
}

func (s *services) setup() error {
	settings := s.settings

	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		s.metrics = m
	}

	if settings.Geolocation.Enabled {
		s.locator = geolocation.NewClient(&settings.Geolocation)
	}

	if s.localStore() {
		store, err := datastore.New(settings)
		if err != nil {
			return err
		}
		if err := store.Open(); err != nil {
			return err
		}
		s.store = store
		s.onClose(func() {
			if err := store.Close(); err != nil {
				logger.Global().Module("serve").Warn("Failed to close datastore", logger.Error(err))
			}
		})
	}

	if settings.WebServer.Enabled {
		var opts []api.ServerOption
		if s.locator != nil {
			opts = append(opts, api.WithLocator(s.locator))
		}
		if s.metrics != nil {
			opts = append(opts, api.WithMetrics(s.metrics))
		}
		if settings.Analyzer.Enabled && settings.Analyzer.ClipDir != "" {
			opts = append(opts, api.WithPendingCounter(newQueue(settings)))
		}
		server, err := api.New(settings, s.store, opts...)
		if err != nil {
			return err
		}
		s.server = server
	}
	return nil
}

func newQueue(settings *conf.Settings) *analysis.DirectoryQueue {
	a := settings.Analyzer
	return analysis.NewDirectoryQueue(a.ClipDir, a.RejectDir, a.Extensions, a.MinFileAge)
}

// pipeline builds the analyzer with the configured store mode and the
// optional integrations.
func (s *services) pipeline() (*analysis.Pipeline, error) {
	settings := s.settings
	log := logger.Global().Module("serve")

	bn, err := birdnet.NewBirdNET(&settings.BirdNET)
	if err != nil {
		return nil, err
	}
	s.onClose(bn.Delete)

	opts := analysis.Options{
		Classifier: bn,
		Queue:      newQueue(settings),
		KeyMode:    settings.ClipKeyMode(),
		Interval:   settings.Analyzer.Interval,
	}

	if settings.BirdNET.RangeFilter.ModelPath != "" {
		rangeModel, err := birdnet.NewRangeModel(&settings.BirdNET, bn.Labels)
		if err != nil {
			return nil, err
		}
		s.onClose(rangeModel.Delete)
		opts.Prior = birdnet.NewLocationPrior(rangeModel, settings.BirdNET.RangeFilter.CacheTTL)
	} else {
		log.Warn("No range model configured, location confidence is not computed")
	}

	if s.metrics != nil {
		opts.Metrics = s.metrics.Pipeline
	}

	switch {
	case s.store != nil && settings.Analyzer.Store != storeModeRemote:
		opts.Config = analysis.NewStoreConfigSource(s.store, s.locator)
		opts.Store = s.store
		if s.server != nil {
			controller := s.server.Controller()
			opts.Store = analysis.SaveHookStore{
				Store:   s.store,
				OnSaved: controller.InvalidateObservations,
			}
			opts.Heartbeat = analysis.HeartbeatFunc(func(context.Context) error {
				controller.RecordHeartbeat(handlers.ServiceAnalyzer)
				return nil
			})
		}
	default:
		client := remote.NewClient(settings.Analyzer.RemoteURL, settings.Analyzer.Timeout)
		opts.Config = client
		opts.Store = client
		opts.Heartbeat = client
	}

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(mqtt.ConfigFromSettings(settings), s.mqttMetrics())
		s.onClose(client.Disconnect)
		opts.Publisher = mqtt.NewDetectionPublisher(client, settings.MQTT.Topic)
	}

	if settings.Notification.Enabled {
		notifier, err := s.notifier()
		if err != nil {
			return nil, err
		}
		if notifier != nil {
			opts.Notifier = notifier
		}
	}

	return analysis.NewPipeline(opts)
}

func (s *services) notifier() (*notification.ObservationNotifier, error) {
	if s.store == nil {
		logger.Global().Module("serve").Warn("Observation notifications need the local store, disabled")
		return nil, nil
	}

	n := s.settings.Notification
	sender, err := notification.NewShoutrrrSender(n.URLs, notificationTimeout)
	if err != nil {
		return nil, err
	}
	var m *metrics.NotificationMetrics
	if s.metrics != nil {
		m = s.metrics.Notification
	}
	notifier := notification.NewObservationNotifier(sender, s.store, n.Title, n.DedupeWindow, m)
	s.onClose(notifier.Flush)
	return notifier, nil
}

func (s *services) mqttMetrics() *metrics.MQTTMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.MQTT
}
