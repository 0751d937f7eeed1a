package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"presencebridge/internal/config"
	"presencebridge/internal/gateway"
	"presencebridge/internal/notifier"
	"presencebridge/internal/player"
	"presencebridge/internal/presence"
	"presencebridge/internal/server"
	"presencebridge/internal/store"
)

const shutdownTimeout = 10 * time.Second

var missingCredentials = notifier.Notification{
	Title:   "Presence disabled",
	Message: "No gateway application id or token is configured. Set PRESENCE_GATEWAY_APP_ID and PRESENCE_GATEWAY_TOKEN, or store them with setcredentials, then restart.",
	Level:   notifier.LevelWarning,
}

// run blocks until ctx is done. Missing credentials are not an error: the
// user is notified once and run returns nil without connecting.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	notify, err := notifier.New(cfg.Notifier.Channels)
	if err != nil {
		return fmt.Errorf("configuring notifier: %w", err)
	}

	stored, err := st.GetGatewayCredentials()
	if err != nil {
		return fmt.Errorf("loading stored credentials: %w", err)
	}
	appID, token, err := cfg.Credentials(stored.ApplicationID, stored.Token)
	if errors.Is(err, config.ErrMissingCredentials) {
		logger.Error("gateway credentials missing, presence disabled", zap.Bool("has_app_id", appID != ""))
		notifyUser(ctx, notify, logger, missingCredentials)
		return nil
	}

	limit := rate.Limit(cfg.Gateway.UpdatesPerMinute / 60)
	gw := gateway.New(gateway.Config{
		URL:           cfg.Gateway.URL,
		Token:         token,
		ApplicationID: appID,
		ActivityName:  cfg.Gateway.ActivityName,
		ClientName:    cfg.Gateway.ClientName,
		Device:        cfg.Gateway.Device,
	},
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithRateLimiter(rate.NewLimiter(limit, cfg.Gateway.UpdateBurst)),
	)
	connected := true
	if err := gw.Connect(ctx); err != nil {
		connected = false
		logger.Warn("connecting to gateway", zap.String("url", cfg.Gateway.URL), zap.Error(err))
	}

	snap := player.NewSnapshot()
	bridge := presence.NewBridge(gw, snap,
		presence.WithLogger(logger.Named("presence")),
		presence.WithLookupRetry(cfg.Presence.LookupAttempts, cfg.Presence.LookupDelay),
		presence.WithLargeImage(cfg.Presence.LargeImageKey, cfg.Presence.LargeImageText),
	)

	srv := server.NewServer(st, bridge, snap,
		server.WithGateway(gw),
		server.WithEventsToken(cfg.HTTP.EventsToken),
		server.WithCORSOrigin(cfg.HTTP.CORSOrigin),
		server.WithEventLimit(cfg.HTTP.EventsPerMinute),
		server.WithLogger(logger.Named("http")),
	)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})

	g.Go(func() error {
		defer close(runDone)
		bridge.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("listening for player events", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if connected {
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-gw.Done():
				if gctx.Err() == nil {
					logger.Warn("gateway session ended, presence updates stop until restart")
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		<-runDone
		if cerr := gw.ClearPresence(shutdownCtx); cerr != nil && !errors.Is(cerr, gateway.ErrNotReady) {
			logger.Warn("clearing presence", zap.Error(cerr))
		}
		gw.Disconnect()
		return err
	})

	return g.Wait()
}

// notifyUser delivers note to the configured channels. Without channels the
// note goes to the log.
func notifyUser(ctx context.Context, notify *notifier.Notifier, logger *zap.Logger, note notifier.Notification) {
	if notify.Channels() == 0 {
		logger.Warn(note.Title, zap.String("message", note.Message), zap.String("level", string(note.Level)))
		return
	}
	if err := notify.Notify(ctx, note); err != nil {
		logger.Warn("sending notification", zap.Error(err))
	}
}
