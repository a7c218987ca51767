package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"headerswitch/api"
	"headerswitch/api/router/handlers"
	"headerswitch/browser"
	"headerswitch/config"
	"headerswitch/core"
	"headerswitch/database"
	"headerswitch/logger"

	"github.com/spf13/cobra"
)

var (
	startServerPort string
	startProxyPort  string
	startProxyMode  string
	startControlURL string
)

// portOrConfig picks the flag value when the flag was set, else the config value, else fallback.
func portOrConfig(cmd *cobra.Command, flagName, flagValue, configValue, fallback string) string {
	port := flagValue
	if !cmd.Flags().Changed(flagName) {
		port = configValue
	}
	if port == "" {
		logger.Error("Start Command: %s is empty after checking flag and config, defaulting to %s", flagName, fallback)
		port = fallback
	}
	return port
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the API server and the header proxy",
	Long: `Loads the profiles, installs the active profile's rules and starts the API server and
the header proxy concurrently. With a browser control URL the browser's requests are rewritten
too. Edits made by other headerswitch processes are picked up while running.
Press Ctrl+C to gracefully shut down all services.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("--- Start Command: Run ---")

		serverPort := portOrConfig(cmd, "server-port", startServerPort, config.AppConfig.Server.Port, "8778")
		proxyPort := portOrConfig(cmd, "proxy-port", startProxyPort, config.AppConfig.Proxy.Port, "8777")
		mode := config.AppConfig.Proxy.Mode
		if cmd.Flags().Changed("mode") {
			mode = startProxyMode
		}
		controlURL := config.AppConfig.Browser.ControlURL
		if cmd.Flags().Changed("browser") {
			controlURL = startControlURL
		}
		logger.Info("Start Command: Server: %s, Proxy: %s (mode %s)", serverPort, proxyPort, mode)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		settings := database.NewSettingsStore(database.DB)
		engine := core.NewMemoryEngine()
		profiles := core.NewProfileStore(settings, core.NewSynchronizer(engine))
		if err := profiles.Load(ctx); err != nil {
			return fmt.Errorf("loading profiles: %w", err)
		}
		if err := profiles.Apply(ctx); err != nil {
			return fmt.Errorf("installing rules of profile %q: %w", profiles.CurrentProfile(), err)
		}
		logger.Info("Start Command: Active profile %q installed", profiles.CurrentProfile())
		stopFollowing := profiles.FollowExternalChanges(ctx)
		defer stopFollowing()

		proxyOpts := core.ProxyOptions{
			Mode:       core.ProxyMode(mode),
			Engine:     engine,
			CACertPath: config.AppConfig.Proxy.CACertPath,
			CAKeyPath:  config.AppConfig.Proxy.CAKeyPath,
		}
		if _, err := os.Stat(proxyOpts.CACertPath); err != nil {
			logger.Warn("Start Command: CA certificate %s not found (%v). Run 'proxy init-ca' to rewrite HTTPS requests.", proxyOpts.CACertPath, err)
			proxyOpts.CACertPath, proxyOpts.CAKeyPath = "", ""
		}
		if proxyOpts.Mode == core.ModeLive {
			live := core.NewLiveInterceptor(settings, config.AppConfig.Settings.LiveRulesKey)
			if err := live.Start(ctx); err != nil {
				return err
			}
			defer live.Stop()
			proxyOpts.Live = live
		}

		var wg sync.WaitGroup

		// --- Settings watcher ---
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := settings.Watch(ctx, config.AppConfig.Settings.PollInterval); err != nil {
				logger.Error("Start Command Goroutine(Watch): %v", err)
				cancel()
			}
		}()

		// --- API server ---
		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			apiRouter := api.NewRouter(&handlers.API{
				Profiles:     profiles,
				Engine:       engine,
				Settings:     settings,
				LiveRulesKey: config.AppConfig.Settings.LiveRulesKey,
			})
			server := &http.Server{
				Addr:    ":" + serverPort,
				Handler: api.Mount(apiRouter),
			}

			go func() {
				<-parentCtx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("Start Command Goroutine(API): Graceful shutdown failed: %v", err)
				} else {
					logger.Info("Start Command Goroutine(API): Gracefully stopped.")
				}
			}()

			logger.Info("Start Command Goroutine(API): Listening on :%s", serverPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Start Command Goroutine(API): ListenAndServe error: %v", err)
				cancel()
			}
		}(ctx)

		// --- Header proxy ---
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := core.StartHeaderProxy(ctx, proxyPort, proxyOpts); err != nil {
				logger.Error("Start Command Goroutine(Proxy): %v", err)
				cancel()
			}
		}()

		// --- Browser ---
		if controlURL != "" {
			session, err := browser.Attach(ctx, controlURL, engine)
			if err != nil {
				logger.Error("Start Command: Could not attach to browser: %v", err)
			} else {
				defer session.Close()
			}
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		logger.Info("Start Command: All services launched. Press Ctrl+C to exit.")

		select {
		case sig := <-sigs:
			logger.Info("Start Command: Received signal: %s. Initiating shutdown...", sig)
		case <-ctx.Done():
			logger.Info("Start Command: Context cancelled (likely due to a service error). Initiating shutdown...")
		}
		cancel()

		shutdownComplete := make(chan struct{})
		go func() {
			wg.Wait()
			close(shutdownComplete)
		}()

		select {
		case <-shutdownComplete:
			logger.Info("Start Command: All services shut down.")
		case <-time.After(10 * time.Second):
			logger.Error("Start Command: Shutdown timed out. Forcing exit.")
		}
		return nil
	},
}

func init() {
	startCmd.Flags().StringVar(&startServerPort, "server-port", "8778", "Port for the API server (overrides config)")
	startCmd.Flags().StringVar(&startProxyPort, "proxy-port", "8777", "Port for the header proxy (overrides config)")
	startCmd.Flags().StringVar(&startProxyMode, "mode", config.ProxyModeDeclarative, "Proxy mode: declarative or live (overrides config)")
	startCmd.Flags().StringVar(&startControlURL, "browser", "", "DevTools control URL of a running browser to attach to (overrides config)")
	rootCmd.AddCommand(startCmd)
}
