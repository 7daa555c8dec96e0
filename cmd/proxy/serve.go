package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gookitcolor "github.com/gookit/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.minekube.com/common/minecraft/color"
	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/janispritzkau/2b2proxy/internal/chat"
	"github.com/janispritzkau/2b2proxy/internal/config"
	"github.com/janispritzkau/2b2proxy/internal/downstream"
	"github.com/janispritzkau/2b2proxy/internal/ops"
	"github.com/janispritzkau/2b2proxy/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := initLogger(cfg.Debug); err != nil {
		return fmt.Errorf("error initializing global logger: %w", err)
	}
	if err := config.Validate(&cfg); err != nil {
		return fmt.Errorf("error validating config: %w", err)
	}
	log := zap.L()
	printBanner(cfg.Bind.Host, cfg.Bind.Port)

	store, err := loadProfileStore(cfg.ProfilesFile)
	if err != nil {
		return fmt.Errorf("error loading profile store: %w", err)
	}

	sessions := session.New(session.Options{
		UpstreamHost:         cfg.Upstream.Host,
		UpstreamPort:         strconv.Itoa(int(cfg.Upstream.Port)),
		AuthServer:           cfg.Upstream.AuthServer,
		ConnectTimeout:       cfg.Upstream.ConnectTimeout,
		CompressionThreshold: cfg.Compression.Threshold,
		CompressionLevel:     cfg.Compression.Level,
		DumpDir:              cfg.DumpDir,
		ReconnectPerMinute:   cfg.RateLimit.ReconnectPerMinute,
		ReconnectBurst:       cfg.RateLimit.ReconnectBurst,
		Log:                  log.Named("session"),
	}, store.List, refreshToken)

	listener, err := downstream.New(downstream.Config{
		Bind:                 fmt.Sprintf("%s:%d", cfg.Bind.Host, cfg.Bind.Port),
		MOTD:                 cfg.Status.MOTD,
		FaviconPath:          cfg.Status.Favicon,
		AuthServer:           cfg.Upstream.AuthServer,
		CompressionThreshold: cfg.Compression.Threshold,
		CompressionLevel:     cfg.Compression.Level,
		AcceptRateLimit:      rate.Limit(cfg.RateLimit.AcceptPerSecond),
		AcceptRateBurst:      cfg.RateLimit.AcceptBurst,
		Sessions:             sessions,
		Owner:                store,
		Log:                  log.Named("downstream"),
	})
	if err != nil {
		return fmt.Errorf("error constructing downstream listener: %w", err)
	}

	metrics := ops.NewMetrics()
	opsServer := ops.New(cfg.Ops.Listen, metrics, func() bool { return true }, log.Named("ops"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer func() { signal.Stop(sig); close(sig) }()

	go func() {
		s, ok := <-sig
		if !ok {
			return
		}
		log.Info("received signal, shutting down", zap.String("signal", s.String()))

		reason, err := chat.FromMinekube(&component.Text{
			Content: "Proxy is shutting down...\nPlease reconnect in a moment!",
			S:       component.Style{Color: color.Red},
		})
		if err != nil {
			reason = chat.Text("Proxy is shutting down...")
		}
		listener.Shutdown(reason)

		sessions.Shutdown()
		cancel()
	}()

	go reportSessionCounts(ctx, sessions, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Serve(gctx) })
	if cfg.Ops.Enabled {
		g.Go(func() error { return opsServer.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("proxy exited with error: %w", err)
	}
	return nil
}

// reportSessionCounts polls the session manager into the connected-session
// gauge; there's no push hook from Manager for this, and the poll is cheap
// enough not to warrant one.
func reportSessionCounts(ctx context.Context, sessions *session.Manager, metrics *ops.Metrics) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.SessionsConnected.Set(float64(sessions.Count()))
		}
	}
}

// printBanner prints a colorized startup line, same family as gate's own
// console encoder choice but for the one-shot process banner rather than
// every log line.
func printBanner(host string, port uint16) {
	gookitcolor.New(gookitcolor.FgGreen, gookitcolor.OpBold).Printf("2b2proxy")
	gookitcolor.FgGray.Printf(" listening on %s:%d\n", host, port)
}

func initLogger(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}
