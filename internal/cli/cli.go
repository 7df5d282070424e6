// Package cli builds the computeq command tree on Cobra.
//
// Command structure:
//
//	computeq
//	├── serve                    # run the compute server
//	│   ├── --address, --port    # router bind endpoint
//	│   ├── --threads            # worker pool size
//	│   └── --logging            # log directory (rotating file)
//	├── client                   # interactive client session
//	│   ├── --address, --port    # server endpoint
//	│   ├── --timeout-ms         # receive timeout
//	│   ├── --caps               # capability list, e.g. add,mult,concat
//	│   └── --name               # client name sent in the handshake
//	└── --config, -c             # YAML config file
//
// Flags override the config file; the config file overrides built-in
// defaults. SIGINT/SIGTERM flip the process-wide stop flag; the router
// loop observes it within one poll interval and shuts down gracefully.
package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"computeq/internal/client"
	"computeq/internal/logging"
	"computeq/internal/metrics"
	"computeq/internal/registry"
	"computeq/internal/runner"
	"computeq/internal/server"
	"computeq/pkg/types"
)

const defaultConfigPath = "configs/default.yaml"

// Config maps the YAML config file.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		Threads int    `yaml:"threads"`
	} `yaml:"server"`

	Client struct {
		Address   string `yaml:"address"`
		Port      int    `yaml:"port"`
		TimeoutMS int    `yaml:"timeout_ms"`
		Caps      string `yaml:"caps"`
		Name      string `yaml:"name"`
	} `yaml:"client"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Logging struct {
		Dir   string `yaml:"dir"`
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Server.Address = "0.0.0.0"
	cfg.Server.Port = 24737
	cfg.Server.Threads = 4
	cfg.Client.Address = "127.0.0.1"
	cfg.Client.Port = 24737
	cfg.Client.TimeoutMS = 3000
	cfg.Client.Caps = "all"
	cfg.Client.Name = "computeq-client"
	cfg.Metrics.Port = 9090
	cfg.Logging.Level = "info"
	return cfg
}

// loadConfig overlays the YAML file on the defaults. A missing file is
// an error only when the user asked for it explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

var configFile string

// BuildCLI assembles the command tree.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "computeq",
		Short:   "computeq: a ticketed request/response compute service",
		Version: "1.0.0",
		Long: `computeq runs a compute server and its interactive client.

The server accepts math and string requests over a ROUTER socket,
executes them inline (blocking) or on a worker pool (non-blocking with a
ticket), and serves results back on the same connection. Clients
advertise a capability bitmask in a one-shot handshake; submissions
outside it are rejected.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildClientCommand())
	return rootCmd
}

// watchSignals flips the stop flag on SIGINT/SIGTERM. The handler does
// nothing else; every blocking loop polls the flag between iterations.
func watchSignals(stop *atomic.Bool, log logrus.FieldLogger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("signal received, stopping")
		stop.Store(true)
	}()
}

func buildServeCommand() *cobra.Command {
	var (
		address string
		port    int
		threads int
		logDir  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the compute server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, cmd.InheritedFlags().Changed("config"))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = address
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("threads") {
				cfg.Server.Threads = threads
			}
			if cmd.Flags().Changed("logging") {
				cfg.Logging.Dir = logDir
			}

			log := logging.Setup(cfg.Logging.Dir, cfg.Logging.Level)
			log.Info("START")

			var stop atomic.Bool
			watchSignals(&stop, log)

			collector := metrics.NewCollector()
			if cfg.Metrics.Enabled {
				go func() {
					if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
						log.WithError(err).Error("metrics server failed")
					}
				}()
				log.WithField("port", cfg.Metrics.Port).Info("metrics enabled")
			}

			run, err := runner.New(runner.Config{Threads: cfg.Server.Threads}, collector, log)
			if err != nil {
				return fmt.Errorf("start runner: %w", err)
			}

			srv, err := server.New(server.Config{
				Address: cfg.Server.Address,
				Port:    cfg.Server.Port,
			}, registry.New(), run, collector, &stop, log)
			if err != nil {
				run.Close()
				return err
			}

			runErr := srv.Run()

			if err := srv.Close(); err != nil {
				log.WithError(err).Error("failed to close router socket")
			}
			run.Close()
			log.Info("END LOGGING")
			return runErr
		},
	}

	cmd.Flags().StringVar(&address, "address", "0.0.0.0", "bind address")
	cmd.Flags().IntVar(&port, "port", 24737, "bind port")
	cmd.Flags().IntVar(&threads, "threads", 4, "number of worker threads")
	cmd.Flags().StringVarP(&logDir, "logging", "l", "", "directory for the rotating log file")
	return cmd
}

func buildClientCommand() *cobra.Command {
	var (
		address   string
		port      int
		timeoutMS int
		capsList  string
		name      string
		logDir    string
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run the interactive compute client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, cmd.InheritedFlags().Changed("config"))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				cfg.Client.Address = address
			}
			if cmd.Flags().Changed("port") {
				cfg.Client.Port = port
			}
			if cmd.Flags().Changed("timeout-ms") {
				cfg.Client.TimeoutMS = timeoutMS
			}
			if cmd.Flags().Changed("caps") {
				cfg.Client.Caps = capsList
			}
			if cmd.Flags().Changed("name") {
				cfg.Client.Name = name
			}
			if cmd.Flags().Changed("logging") {
				cfg.Logging.Dir = logDir
			}

			caps, err := types.ParseCaps(cfg.Client.Caps)
			if err != nil {
				return err
			}

			log := logging.Setup(cfg.Logging.Dir, cfg.Logging.Level)
			log.Info("START")

			var stop atomic.Bool
			watchSignals(&stop, log)

			c, err := client.New(client.Config{
				Address:        cfg.Client.Address,
				Port:           cfg.Client.Port,
				ReceiveTimeout: time.Duration(cfg.Client.TimeoutMS) * time.Millisecond,
				Caps:           caps,
				Name:           cfg.Client.Name,
			}, log)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Handshake(); err != nil {
				return err
			}
			err = c.Run(&stop, os.Stdin, os.Stdout)
			log.Info("END LOGGING")
			return err
		},
	}

	cmd.Flags().StringVar(&address, "address", "127.0.0.1", "server address")
	cmd.Flags().IntVar(&port, "port", 24737, "server port")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 3000, "receive timeout in milliseconds")
	cmd.Flags().StringVar(&capsList, "caps", "all", "capability list, e.g. add,mult,concat")
	cmd.Flags().StringVar(&name, "name", "computeq-client", "client name sent in the handshake")
	cmd.Flags().StringVarP(&logDir, "logging", "l", "", "directory for the rotating log file")
	return cmd
}
