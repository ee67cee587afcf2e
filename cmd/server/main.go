package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/confidant/internal/application"
	"github.com/eugenenazirov/confidant/internal/config"
	"github.com/eugenenazirov/confidant/internal/logging"
	"github.com/eugenenazirov/confidant/internal/secrets"
)

var signalNotify = signal.Notify

const (
	serveCommand = "serve"
	showCommand  = "show"
)

func main() {
	command, overrides, err := parseArgs(os.Args[1:])
	kingpin.FatalIfError(err, "")

	resolver := secrets.NewLazy(func() (secrets.Resolver, error) {
		v, err := secrets.NewVaultFromEnv(secrets.WithCacheTTL(5 * time.Minute))
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	cfg, err := config.Load(ctx, overrides, resolver)
	cancel()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	switch command {
	case showCommand:
		if err := printConfig(os.Stdout, cfg); err != nil {
			panic(fmt.Sprintf("failed to print configuration: %v", err))
		}
	case serveCommand:
		serve(cfg)
	}
}

// parseArgs turns command-line arguments into the selected command and the
// overrides it loads with. Numeric flags are passed through only when given,
// so explicit negative values reach validation.
func parseArgs(args []string) (string, *config.CLIOverrides, error) {
	kingpinApp := kingpin.New("confidant", "Confidant - serves environment-profiled application configuration")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFiles := kingpinApp.Flag("env-file", "Dotenv file loaded before reading the environment (repeatable)").Default(".env").Strings()
	environment := kingpinApp.Flag("env", "Environment profile: development, production, testing, or default").Short('e').String()
	host := kingpinApp.Flag("host", "Bind address").String()
	var portSet, rateLimitRPSSet, rateLimitBurstSet bool
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").IsSetByUser(&portSet).Int()
	logFile := kingpinApp.Flag("log-file", "Path of the JSON log file").String()
	logLevel := kingpinApp.Flag("log-level", "Log level: DEBUG, INFO, WARN, or ERROR").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").IsSetByUser(&rateLimitRPSSet).Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").IsSetByUser(&rateLimitBurstSet).Int()

	kingpinApp.Command(serveCommand, "Run the configuration HTTP service").Default()
	kingpinApp.Command(showCommand, "Print the resolved configuration as YAML (secret redacted, placeholder allowed)")

	command, err := kingpinApp.Parse(args)
	if err != nil {
		return "", nil, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFiles:   *envFiles,
		// show only prints a redacted record, so it works before a secret is provisioned.
		AllowPlaceholderSecret: command == showCommand,
	}
	if *environment != "" {
		overrides.Environment = environment
	}
	if *host != "" {
		overrides.Host = host
	}
	if portSet {
		overrides.Port = port
	}
	if *logFile != "" {
		overrides.LogFile = logFile
	}
	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}
	if rateLimitRPSSet {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if rateLimitBurstSet {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}
	return command, overrides, nil
}

func serve(cfg config.Config) {
	logger, err := logging.New(logging.Options{
		File:    cfg.Settings.LogFile,
		Level:   cfg.Settings.LogLevel.ZapLevel(),
		Console: cfg.Settings.Debug,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	if !cfg.Known {
		logger.Warn("unknown environment, using default profile",
			zap.String("environment", cfg.Environment),
			zap.String("profile", string(cfg.Profile)),
		)
	}
	logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("profile", string(cfg.Profile)),
		zap.Bool("debug", cfg.Settings.Debug),
		zap.Bool("testing", cfg.Settings.Testing),
		zap.String("log_level", string(cfg.Settings.LogLevel)),
	)

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// showDocument is the YAML shape printed by the show command.
type showDocument struct {
	Environment string        `yaml:"environment"`
	Profile     string        `yaml:"profile"`
	Known       bool          `yaml:"known"`
	Settings    config.Record `yaml:"settings"`
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(showDocument{
		Environment: cfg.Environment,
		Profile:     string(cfg.Profile),
		Known:       cfg.Known,
		Settings:    cfg.Settings.Redacted(),
	}); err != nil {
		return err
	}
	return enc.Close()
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
