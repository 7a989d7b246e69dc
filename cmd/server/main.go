package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/telecall/internal/adapters/http"
	"github.com/dkeye/telecall/internal/adapters/media"
	"github.com/dkeye/telecall/internal/adapters/notify"
	"github.com/dkeye/telecall/internal/adapters/rtc"
	"github.com/dkeye/telecall/internal/adapters/token"
	"github.com/dkeye/telecall/internal/app"
	"github.com/dkeye/telecall/internal/app/orch"
	"github.com/dkeye/telecall/internal/app/tracks"
	"github.com/dkeye/telecall/internal/config"
	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

const tokenIssuer = "telecall"

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	rootCmd := &cobra.Command{
		Use:   "telecall",
		Short: "Real-time call session agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the call agent and its HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint or inspect locally signed join tokens",
	}

	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a join token for a channel and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, _ := cmd.Flags().GetString("channel")
			identity, _ := cmd.Flags().GetString("identity")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			p, err := token.NewLocalProvisioner(cfg.Token.Secret, ttl, tokenIssuer)
			if err != nil {
				return err
			}
			cred, err := p.RequestToken(cmd.Context(), domain.ChannelName(channel), domain.Identity(identity), core.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cred.Token)
			return nil
		},
	}
	mintCmd.Flags().String("channel", "", "Channel the token is scoped to")
	mintCmd.Flags().String("identity", "", "Identity of the participant")
	mintCmd.Flags().String("role", string(core.RolePublisher), "Role: publisher or subscriber")
	mintCmd.Flags().Duration("ttl", token.DefaultTTL, "Token lifetime")
	_ = mintCmd.MarkFlagRequired("channel")
	_ = mintCmd.MarkFlagRequired("identity")
	cmd.AddCommand(mintCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a join token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			claims, err := token.Verify(args[0], cfg.Token.Secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel=%s identity=%s role=%s expires=%s\n",
				claims.Channel, claims.Subject, claims.Role, claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	})
	return cmd
}

func provisioner(cfg *config.Config) (core.TokenProvisioner, error) {
	switch cfg.Token.Source {
	case config.TokenSourceLocal:
		return token.NewLocalProvisioner(cfg.Token.Secret, cfg.Token.TTL, tokenIssuer)
	default:
		p := &token.BackendProvisioner{BaseURL: cfg.Token.BackendURL, TTL: cfg.Token.TTL}
		if bearer := cfg.Token.Bearer; bearer != "" {
			p.Bearer = func() string { return bearer }
		}
		return p, nil
	}
}

func runServer() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	zerolog.SetGlobalLevel(cfg.Level())

	devices, err := media.NewDevices(media.Options{
		VideoWidth:   cfg.Media.VideoWidth,
		VideoHeight:  cfg.Media.VideoHeight,
		VideoBitRate: cfg.Media.VideoBitrate,
	})
	if err != nil {
		return fmt.Errorf("media devices: %w", err)
	}
	transport := rtc.NewClient(rtc.Config{
		URL:         cfg.Provider.URL,
		AppID:       cfg.Provider.AppID,
		JoinTimeout: cfg.Provider.JoinTimeout,
		ICEServers:  cfg.Provider.ICEServers,
		Codecs:      devices,
	}, log.Logger)
	tokens, err := provisioner(cfg)
	if err != nil {
		return fmt.Errorf("token provisioner: %w", err)
	}

	call := &orch.Orchestrator{
		Tokens:    tokens,
		Transport: transport,
		Tracks:    tracks.NewManager(devices, transport),
		Registry:  app.NewRegistry(),
		Policy:    app.SimplePolicy{},
	}

	hub := notify.NewHub()
	go hub.Run(ctx)
	call.OnRemoteParticipantsChanged(hub.ParticipantsChanged)
	call.OnError(hub.CallFailed)
	call.OnStateChanged(hub.StateChanged)

	r := router.SetupRouter(ctx, cfg, call, hub)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("provider", cfg.Provider.URL).Msg("telecall agent started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := call.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("call cleanup failed")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
