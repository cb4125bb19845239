package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphan267/roomlink/apis"
	"github.com/tphan267/roomlink/pkg/config"
	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/session"
	"github.com/tphan267/roomlink/pkg/storage"
	"github.com/tphan267/roomlink/pkg/utils"
)

// Version is set at build time
var Version = "dev"

const shutdownTimeout = 5 * time.Second

type joinFlags struct {
	room     string
	user     string
	config   string
	logLevel string
	listen   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "roomlink",
		Short:         "Headless participant for real-time drawing rooms",
		Long:          `roomlink joins a room on the signaling backend, meshes audio/video with every other participant over WebRTC, keeps the shared drawing in sync and exposes it all to a local UI over HTTP.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newJoinCmd())
	return root
}

func newJoinCmd() *cobra.Command {
	var f joinFlags

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room and stay until interrupted",
		Long: `Join a room and stay until SIGINT or SIGTERM.

Examples:
  roomlink join --room 42
  roomlink join --room 42 --user alice --listen 127.0.0.1:4000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.room == "" {
				return fmt.Errorf("--room is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, f)
		},
	}

	cmd.Flags().StringVar(&f.room, "room", "", "Room id to join")
	cmd.Flags().StringVar(&f.user, "user", "", "Username inside the room (defaults to the token's)")
	cmd.Flags().StringVar(&f.config, "config", "roomlink.yaml", "Path to the config file")
	cmd.Flags().StringVar(&f.logLevel, "loglevel", "", "Set the log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.listen, "listen", "", "Address of the local API (overrides listen_addr)")

	return cmd
}

// runJoin runs one session until ctx is cancelled
func runJoin(ctx context.Context, f joinFlags) error {
	cfg, err := config.Load(Version, f.config, f.logLevel)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if f.user != "" {
		cfg.Username = f.user
	}
	if f.listen != "" {
		cfg.ListenAddr = f.listen
	}

	appLogger := logger.NewDefault("ROOMLINK")
	appLogger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	appLogger.Info("Starting roomlink %s...", Version)
	appLogger.Info("Token: %s", utils.MaskSecret(cfg.Token))

	store, err := storage.NewSQLiteStorage(cfg.DBPath, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	sess, err := session.New(cfg, f.room, session.Deps{
		Store:  store,
		Logger: appLogger,
	})
	if err != nil {
		return err
	}
	defer sess.Leave(context.Background())

	sess.OnFault(func(fault *session.Fault) {
		appLogger.Error("%s", fault.Error())
	})

	if err := sess.Start(ctx); err != nil {
		return err
	}

	srv := apis.New(sess, appLogger, apis.Options{
		APIToken:  cfg.APIToken,
		AccessLog: logger.ParseLevel(cfg.LogLevel) == logger.DebugLevel,
	})

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}

	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown error: %v", err)
	}

	sess.Leave(shutdownCtx)
	appLogger.Info("Left room %s", f.room)
	return nil
}
