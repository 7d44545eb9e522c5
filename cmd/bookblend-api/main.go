package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookblendapp/backend/internal/blends"
	"github.com/bookblendapp/backend/internal/config"
	"github.com/bookblendapp/backend/internal/database"
	"github.com/bookblendapp/backend/internal/logging"
	"github.com/bookblendapp/backend/internal/server"
	"github.com/bookblendapp/backend/internal/share"
	"github.com/bookblendapp/backend/internal/upstream"
	"github.com/bookblendapp/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bookblend-api",
		Short: "BookBlend web backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("upstream-base-url", defaults.GetString("upstream.base_url"), "Profile/scoring service base URL")
	cmd.PersistentFlags().String("share-base-url", defaults.GetString("share.base_url"), "Public site base URL used in share links")
	cmd.PersistentFlags().Int("user-ttl-hours", defaults.GetInt("cache.user_ttl_hours"), "Cached profile staleness window in hours")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "upstream.base_url", "upstream-base-url")
	bindFlag(cmd, "share.base_url", "share-base-url")
	bindFlag(cmd, "cache.user_ttl_hours", "user-ttl-hours")
	bindFlag(cmd, "log.level", "log-level")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Logger:     logger,
		StaleAfter: appConfig.UserCacheTTL,
	})
	if err != nil {
		return err
	}

	blendService, err := blends.NewService(blends.ServiceConfig{
		Database:   db,
		IDProvider: blends.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	shareService, err := share.NewService(share.ServiceConfig{
		Database: db,
		Users:    userService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	upstreamClient, err := upstream.NewClient(upstream.Config{
		BaseURL:    appConfig.UpstreamBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:        userService,
		Blends:       blendService,
		Share:        shareService,
		Upstream:     upstreamClient,
		ShareBaseURL: appConfig.ShareBaseURL,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
