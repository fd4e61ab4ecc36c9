package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"campuscal/internal/auth"
	"campuscal/internal/config"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/source"
	"campuscal/internal/view"
)

const version = "0.3.0"

// Options are the global flags plus one struct per subcommand.
type Options struct {
	Config  string `short:"c" long:"config" description:"Path to config file" default:"/etc/campuscal/config.yaml" env:"CAMPUSCAL_CONFIG" value-name:"<path>"`
	Verbose bool   `short:"v" long:"verbose" description:"Log at debug level"`

	Serve        ServeCommand        `command:"serve" description:"Run the calendar web server with scheduled refresh"`
	Show         ShowCommand         `command:"show" description:"Print one calendar view and exit"`
	Login        LoginCommand        `command:"login" description:"Sign in to the calendar service and store the token"`
	Logout       LogoutCommand       `command:"logout" description:"Forget the stored token"`
	Check        CheckCommand        `command:"check" description:"Test the connection to the calendar service"`
	HashPassword HashPasswordCommand `command:"hash-password" description:"Print a bcrypt hash for basic_auth.password_hash"`
	Snapshot     SnapshotCommand     `command:"snapshot" description:"Render /calendar to a PNG with headless Chromium"`
	Version      VersionCommand      `command:"version" description:"Print the version"`
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = false

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		// flags.Default includes PrintErrors, so err is already on stderr.
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies its log settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.Config, err)
	}

	level := appLog.ParseLevel(cfg.Log.Level)
	if opts.Verbose {
		level = appLog.LevelDebug
	}
	appLog.Setup(level, cfg.Log.Format, os.Stderr)

	appLog.Debug("effective config",
		"config_path", opts.Config,
		"listen", cfg.Listen,
		"api_base_url", cfg.API.BaseURL,
		"api_endpoint", cfg.API.Endpoint,
		"default_view", cfg.DefaultView,
		"refresh", cfg.RefreshCron,
		"basic_auth", cfg.BasicAuth != nil,
	)
	return cfg, nil
}

func newSource(cfg *config.Config) *source.HTTPSource {
	return source.NewHTTPSource(source.Options{
		BaseURL:  cfg.API.BaseURL,
		Endpoint: source.Endpoint(cfg.API.Endpoint),
		Timeout:  cfg.API.Timeout,
		Tokens:   auth.NewTokenStore(cfg.TokenPath),
	})
}

func newLoader(cfg *config.Config, src source.Source) *view.Loader {
	return view.NewLoader(src, view.Options{
		DefaultView: model.Granularity(cfg.DefaultView),
		RefreshSpec: cfg.RefreshCron,
	})
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// VersionCommand prints the program version.
type VersionCommand struct{}

func (c *VersionCommand) Execute(_ []string) error {
	fmt.Println("campuscal", version)
	return nil
}
