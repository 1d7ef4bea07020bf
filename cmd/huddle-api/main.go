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

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/config"
	"github.com/MarcoPoloResearchLab/huddle/internal/database"
	"github.com/MarcoPoloResearchLab/huddle/internal/logging"
	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
	"github.com/MarcoPoloResearchLab/huddle/internal/persistence"
	"github.com/MarcoPoloResearchLab/huddle/internal/server"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "huddle-api",
		Short: "Huddle messaging backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newUsersCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("flush-schedule", defaults.GetString("persistence.flush_schedule"), "Cron schedule for snapshot flushes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "persistence.flush_schedule", "flush-schedule")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// services holds the collaborators shared by every subcommand.
type services struct {
	config config.AppConfig
	logger *zap.Logger
	db     *gorm.DB
	users  *users.Service
	tokens *auth.TokenIssuer
}

func openRuntime() (*services, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	closeFn := func() {
		_ = sqlDB.Close()
		_ = logger.Sync()
	}
	return &services{
		config: appConfig,
		logger: logger,
		db:     db,
		users:  userService,
		tokens: tokenIssuer,
	}, closeFn, nil
}

func runServer(ctx context.Context) error {
	rt, closeRuntime, err := openRuntime()
	if err != nil {
		return err
	}
	defer closeRuntime()
	logger := rt.logger

	scheduler := messaging.NewScheduler(logger)
	engine, err := messaging.NewEngine(messaging.EngineConfig{
		Directory:  rt.users,
		Clock:      time.Now,
		IDProvider: messaging.NewUUIDProvider(),
		Scheduler:  scheduler,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	snapshotter, err := persistence.NewSnapshotter(persistence.SnapshotterConfig{
		Database:  rt.db,
		Engine:    engine,
		Scheduler: scheduler,
		Schedule:  rt.config.FlushSchedule,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	restored, err := snapshotter.Load(ctx)
	if err != nil {
		return err
	}
	logger.Info("engine state loaded", zap.Bool("restored", restored))

	scheduler.Start()
	defer scheduler.Stop()

	sessions, err := auth.NewSessionResolver(rt.tokens, rt.users)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Engine:            engine,
		Sessions:          sessions,
		Permissions:       rt.users,
		Realtime:          server.NewRealtimeDispatcher(),
		AllowedOrigins:    rt.config.AllowedOrigins,
		HeartbeatInterval: rt.config.StreamHeartbeat,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    rt.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", rt.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if err := snapshotter.Flush(shutdownCtx); err != nil {
			logger.Error("final snapshot flush failed", zap.Error(err))
		}
		return shutdownErr
	case err := <-errCh:
		return err
	}
}

func newUsersCommand() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered users",
	}

	var displayName string
	var owner bool
	addCmd := &cobra.Command{
		Use:   "add <handle>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRuntime, err := openRuntime()
			if err != nil {
				return err
			}
			defer closeRuntime()

			var permission users.Permission
			if owner {
				permission = users.PermissionGlobalOwner
			}
			user, err := rt.users.Register(args[0], displayName, permission)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\towner=%t\n", user.ID, user.Handle, user.IsGlobalOwner())
			return err
		},
	}
	addCmd.Flags().StringVar(&displayName, "display-name", "", "Display name")
	addCmd.Flags().BoolVar(&owner, "owner", false, "Grant global owner permission")

	usersCmd.AddCommand(addCmd)
	return usersCmd
}

func newTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage session tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Issue a session token for a registered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := messaging.ParseUserID(args[0])
			if err != nil {
				return err
			}
			rt, closeRuntime, err := openRuntime()
			if err != nil {
				return err
			}
			defer closeRuntime()

			if _, err := rt.users.Lookup(userID); err != nil {
				return err
			}
			token, expiresIn, err := rt.tokens.IssueToken(cmd.Context(), userID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in=%d\n", token, expiresIn)
			return err
		},
	}

	tokenCmd.AddCommand(issueCmd)
	return tokenCmd
}
