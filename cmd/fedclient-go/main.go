// Package main is the entrypoint for the fedclient-go command line
// client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/openfedi/fedclient-go/internal/auth"
	"github.com/openfedi/fedclient-go/internal/callback"
	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/discovery"
	"github.com/openfedi/fedclient-go/internal/execute"
	"github.com/openfedi/fedclient-go/internal/origin"
	"github.com/openfedi/fedclient-go/internal/platform/cache"
	"github.com/openfedi/fedclient-go/internal/platform/config"
	httpclient "github.com/openfedi/fedclient-go/internal/platform/http/client"
	"github.com/openfedi/fedclient-go/internal/protocol"
	"github.com/openfedi/fedclient-go/internal/store"
	"github.com/openfedi/fedclient-go/internal/throttle"

	// Register drivers
	_ "github.com/openfedi/fedclient-go/internal/platform/cache/memory"
	_ "github.com/openfedi/fedclient-go/internal/store/json"
	_ "github.com/openfedi/fedclient-go/internal/store/sqlite"
)

const usage = `Usage: fedclient-go [flags] <command> [args]

Commands:
  get <url>                 Perform an authenticated GET
  post <url> [json]         Perform an authenticated POST
  download <url> <dest>     Download a file
  authorize                 Run the interactive authorization flow
  register                  Obtain client credentials from the origin
  discover                  Fetch the origin's auth metadata
  forget                    Drop stored credentials for the origin
  origins                   List configured origins
`

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	originName := flag.String("origin", "", "Configured origin to operate on")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	storeDriver := flag.String("store-driver", "", "Persistence driver: json or sqlite (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	logNetwork := flag.String("log-network", "", "Log every wire attempt: true or false (overrides config)")
	allowSensitive := flag.String("logging-allow-sensitive", "", "Allow sensitive values in logs: true or false (overrides config)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			DataDir:        dataDir,
			StoreDriver:    storeDriver,
			SSRFMode:       ssrfMode,
			LoggingLevel:   loggingLevel,
			LogNetwork:     logNetwork,
			AllowSensitive: allowSensitive,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := args[0], args[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, command, *originName, args); err != nil {
		logger.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, command, originName string, args []string) error {
	if command == "origins" {
		for _, oc := range cfg.Origins {
			fmt.Printf("%s\t%s\t%s/%s\n", oc.Name, oc.URL, oc.Type, oc.Auth)
		}
		return nil
	}

	oc, err := pickOrigin(cfg, originName)
	if err != nil {
		return err
	}
	desc, err := origin.FromConfig(oc)
	if err != nil {
		return err
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	backend, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := backend.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer backend.Close()

	sealer, err := creds.NewSealer(cfg.Credentials.SealPassphrase)
	if err != nil {
		return err
	}
	credStore := creds.NewStore(backend, sealer, logger)
	if oc.ClientKey != "" {
		host, err := desc.Host()
		if err != nil {
			return err
		}
		credStore.AddStatic(host, oc.ClientKey, oc.ClientSecret)
	}

	httpClient := httpclient.New(&cfg.OutboundHTTP, httpclient.Options{
		InsecureSkipVerify: desc.SSLMode.Insecure(),
	})
	cacheInstance := cache.NewFromConfig(cfg.Cache.Driver, cfg.Cache.Drivers)
	defer cacheInstance.Close()
	discoveryClient := discovery.NewClient(httpClient, cacheInstance, logger)

	var listener *callback.Listener
	if command == "authorize" || command == "get" || command == "post" || command == "download" {
		listener = callback.New(cfg.Callback, logger)
		if err := listener.Start(); err != nil {
			return err
		}
		defer listener.Close(context.Background())
	}

	authClient, err := auth.New(desc, auth.Deps{
		HTTP:       httpClient,
		Creds:      credStore,
		Discovery:  discoveryClient,
		Callback:   listener,
		Logger:     logger,
		LogNetwork: cfg.Logging.LogNetwork,
		AuthorizePrompt: func(authorizeURL string) {
			fmt.Fprintf(os.Stderr, "Open this URL to authorize:\n\n  %s\n\n", authorizeURL)
		},
	})
	if err != nil {
		return err
	}

	table := throttle.New(cfg.Throttle)
	executor := execute.New(desc, authClient, table, logger, cfg.Logging.LogNetwork)

	switch command {
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <url>")
		}
		return printResult(executor.Execute(ctx, protocol.RequestDescriptor{
			Verb:         protocol.VerbGet,
			URI:          args[0],
			Routine:      protocol.RoutineGeneric,
			Authenticate: true,
		}))

	case "post":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: post <url> [json]")
		}
		req := protocol.RequestDescriptor{
			Verb:         protocol.VerbPost,
			URI:          args[0],
			Routine:      protocol.RoutineGeneric,
			Authenticate: true,
		}
		if len(args) == 2 {
			req.JSONBody = []byte(args[1])
		}
		return printResult(executor.Execute(ctx, req))

	case "download":
		if len(args) != 2 {
			return fmt.Errorf("usage: download <url> <dest>")
		}
		return printResult(executor.Execute(ctx, protocol.RequestDescriptor{
			Verb:     protocol.VerbGet,
			URI:      args[0],
			Routine:  protocol.RoutineDownloadFile,
			DestFile: args[1],
		}))

	case "authorize":
		if err := authClient.AcquireOrRefreshAccess(ctx); err != nil {
			return err
		}
		fmt.Println("authorized")
		return nil

	case "register":
		if err := authClient.RegisterClient(ctx); err != nil {
			return err
		}
		fmt.Println("registered")
		return nil

	case "discover":
		meta, err := discoveryClient.Discover(ctx, desc)
		if err != nil {
			return err
		}
		if meta == nil {
			fmt.Println("origin publishes no auth metadata")
			return nil
		}
		fmt.Printf("issuer:        %s\n", meta.Issuer)
		fmt.Printf("authorize:     %s\n", meta.AuthorizationEndpoint)
		fmt.Printf("token:         %s\n", meta.TokenEndpoint)
		fmt.Printf("registration:  %s\n", meta.RegistrationEndpoint)
		fmt.Printf("introspection: %s\n", meta.IntrospectionEndpoint)
		return nil

	case "forget":
		if err := authClient.ClearCredentials(ctx); err != nil {
			return err
		}
		fmt.Println("credentials cleared")
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func pickOrigin(cfg *config.Config, name string) (config.OriginConfig, error) {
	if len(cfg.Origins) == 0 {
		return config.OriginConfig{}, fmt.Errorf("no origins configured")
	}
	if name == "" {
		if len(cfg.Origins) == 1 {
			return cfg.Origins[0], nil
		}
		names := make([]string, len(cfg.Origins))
		for i, oc := range cfg.Origins {
			names[i] = oc.Name
		}
		return config.OriginConfig{}, fmt.Errorf("multiple origins configured, pick one with -origin (%s)", strings.Join(names, ", "))
	}
	for _, oc := range cfg.Origins {
		if oc.Name == name {
			return oc, nil
		}
	}
	return config.OriginConfig{}, fmt.Errorf("unknown origin %q", name)
}

func printResult(res *protocol.ResponseResult) error {
	if res.HasError() {
		return res.Exception()
	}
	if len(res.Body) > 0 {
		os.Stdout.Write(res.Body)
		if res.Body[len(res.Body)-1] != '\n' {
			fmt.Println()
		}
	}
	if res.FileBytes > 0 {
		fmt.Printf("wrote %d bytes\n", res.FileBytes)
	}
	return nil
}
