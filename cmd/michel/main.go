package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hoohoot/michel/internal/bridge"
	"github.com/hoohoot/michel/internal/httpapi"
	"github.com/hoohoot/michel/internal/matrix"
	"github.com/hoohoot/michel/internal/seerr"
)

type config struct {
	matrixHomeserverURL string
	matrixUserID        string
	matrixPassword      string
	matrixRoomAlias     string
	storeDSN            string
	webhookListenAddr   string
	seerrAPIURL         string
	seerrAPIKey         string
	adminUsers          string
	adminUsersFile      string
	openMarker          string
	webhookToken        string
	adminAPIToken       string
	maxBodyBytes        int64
	shutdownTimeout     time.Duration
}

func loadConfig() (config, error) {
	cfg := config{
		webhookListenAddr: envOr("WEBHOOK_LISTEN_ADDR", "0.0.0.0:8080"),
		adminUsers:        os.Getenv("MATRIX_ADMIN_USERS"),
		adminUsersFile:    strings.TrimSpace(os.Getenv("MATRIX_ADMIN_USERS_FILE")),
		openMarker:        os.Getenv("OPEN_MARKER_EMOJI"),
		webhookToken:      os.Getenv("WEBHOOK_TOKEN"),
		adminAPIToken:     os.Getenv("ADMIN_API_TOKEN"),
		maxBodyBytes:      int64Env("MICHEL_MAX_BODY_BYTES", 0),
		shutdownTimeout:   durationEnv("MICHEL_SHUTDOWN_TIMEOUT", 5*time.Second),
	}
	var err error
	if cfg.matrixHomeserverURL, err = requiredEnv("MATRIX_HOMESERVER_URL"); err != nil {
		return config{}, err
	}
	if cfg.matrixUserID, err = requiredEnv("MATRIX_USER_ID"); err != nil {
		return config{}, err
	}
	if cfg.matrixPassword, err = requiredEnv("MATRIX_PASSWORD"); err != nil {
		return config{}, err
	}
	if cfg.matrixRoomAlias, err = requiredEnv("MATRIX_ROOM_ALIAS"); err != nil {
		return config{}, err
	}
	if cfg.seerrAPIURL, err = requiredEnv("SEERR_API_URL"); err != nil {
		return config{}, err
	}
	if cfg.seerrAPIKey, err = requiredEnv("SEERR_API_KEY"); err != nil {
		return config{}, err
	}
	cfg.storeDSN = strings.TrimSpace(os.Getenv("MICHEL_STORE_DSN"))
	if cfg.storeDSN == "" {
		if cfg.storeDSN, err = requiredEnv("DATABASE_URL"); err != nil {
			return config{}, err
		}
	}
	return cfg, nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("bridge exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bridge.BuildStoreFromDSN(cfg.storeDSN)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer store.Close()

	client := matrix.NewClient(matrix.ClientOptions{
		HomeserverURL: cfg.matrixHomeserverURL,
		Logger:        logger,
	})
	if err := client.Login(ctx, cfg.matrixUserID, cfg.matrixPassword); err != nil {
		return err
	}
	roomID, err := client.JoinRoom(ctx, cfg.matrixRoomAlias)
	if err != nil {
		return err
	}
	gateway := matrix.NewRoomGateway(client, roomID)

	admins, cleanupAdmins, err := buildAdminList(cfg, logger)
	if err != nil {
		return fmt.Errorf("admin list: %w", err)
	}
	defer cleanupAdmins()

	activity := bridge.NewActivityFeed(0)
	router := bridge.NewRouter(bridge.RouterOptions{
		Store:      store,
		Chat:       gateway,
		OpenMarker: cfg.openMarker,
		Logger:     logger,
		Activity:   activity,
	})
	interpreter := bridge.NewInterpreter(bridge.InterpreterOptions{
		Store:    store,
		Chat:     gateway,
		Issues:   seerr.NewClient(seerr.ClientOptions{BaseURL: cfg.seerrAPIURL, APIKey: cfg.seerrAPIKey}),
		Admins:   admins,
		Logger:   logger,
		Activity: activity,
	})

	server := httpapi.NewServer(router, store, activity, httpapi.ServerConfig{
		WebhookToken: cfg.webhookToken,
		AdminToken:   cfg.adminAPIToken,
		MaxBodyBytes: cfg.maxBodyBytes,
	}, logger)
	httpServer := &http.Server{Addr: cfg.webhookListenAddr, Handler: server}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("webhook server listening", "addr", cfg.webhookListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	go func() {
		errCh <- client.Sync(ctx, roomID, func(_ context.Context, msg matrix.MessageEvent) {
			// Each command runs independently of the sync loop so one
			// slow remote call never delays message delivery.
			go func() {
				cmdCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				_ = interpreter.HandleMessage(cmdCtx, bridge.InboundMessage{
					Sender:       msg.Sender,
					Body:         msg.Body,
					ThreadRootID: msg.ThreadRootID,
				})
			}()
		})
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	return runErr
}

func buildAdminList(cfg config, logger *slog.Logger) (bridge.AdminChecker, func(), error) {
	var lists bridge.MultiAdminList
	cleanup := func() {}
	if static := bridge.ParseAdminList(cfg.adminUsers); len(static) > 0 {
		lists = append(lists, static)
	}
	if cfg.adminUsersFile != "" {
		fileList, err := bridge.NewFileAdminList(cfg.adminUsersFile, logger)
		if err != nil {
			return nil, nil, err
		}
		lists = append(lists, fileList)
		cleanup = func() { _ = fileList.Close() }
	}
	if len(lists) == 0 {
		logger.Warn("no admin users configured, commands will be ignored")
	}
	return lists, cleanup, nil
}

func requiredEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("%s must be set", name)
	}
	return value, nil
}

func envOr(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid env value, using fallback", "name", name, "value", raw)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid env value, using fallback", "name", name, "value", raw)
		return fallback
	}
	return value
}
