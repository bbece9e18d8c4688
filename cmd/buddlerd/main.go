package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/buddlerjoe/buddlerd/internal/network"
	"github.com/buddlerjoe/buddlerd/internal/server"
	"github.com/buddlerjoe/buddlerd/pkg/config"
)

var (
	configPath string
	logLevel   string
	port       int
	maxClients int
	version    = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "buddlerd",
	Short: "Buddlerd - Buddler-Joe Dedicated Server",
	Long: `Buddlerd is the authoritative multiplayer server for Buddler-Joe,
handling logins, lobbies, the shared world map, and chat over a
line-delimited TCP protocol.`,
	Version: version,
	Run:     runServer,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Buddlerd server",
	Long:  "Start the Buddlerd dedicated server with the specified configuration",
	Run:   runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Buddlerd v%s\n", version)
		fmt.Println("Buddler-Joe Dedicated Server")
		fmt.Println("Built with Go")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "override the configured game port")
	rootCmd.PersistentFlags().IntVar(&maxClients, "max-clients", 0, "override the configured client cap")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("max-clients") {
		cfg.Server.MaxClients = maxClients
	}

	var logWriter io.Writer = os.Stdout
	if cfg.Server.LogToFile {
		logWriter = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Server.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting buddlerd server", "version", version)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(2)
	}

	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		if errors.Is(err, network.ErrBindFailed) {
			os.Exit(1)
		}
		os.Exit(2)
	}

	logger.Info("server running",
		"name", cfg.Server.Name,
		"address", fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		"generator", cfg.Map.Generator,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("shutting down server")

	srv.Stop()
	logger.Info("server stopped successfully")
}

// loadConfig reads the TOML config. A missing file at the default path
// is not an error; the server runs on built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
