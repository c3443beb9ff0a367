package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hanpama/stitchgraph/internal/config"
	"github.com/hanpama/stitchgraph/internal/eventbus"
	"github.com/hanpama/stitchgraph/internal/extension"
	"github.com/hanpama/stitchgraph/internal/gateway"
	"github.com/hanpama/stitchgraph/internal/link"
	"github.com/hanpama/stitchgraph/internal/metrics"
	"github.com/hanpama/stitchgraph/internal/otel"
	"github.com/hanpama/stitchgraph/internal/remote"
	"github.com/hanpama/stitchgraph/internal/schema"
	"github.com/hanpama/stitchgraph/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const rootUsage = `stitchgraph: GraphQL schema stitching gateway

USAGE:
  stitchgraph <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL gateway in front of the configured services
  check            Validate a configuration and its extension document offline
  compile-sdl      Introspect the services and print the stitched schema
  introspect       Print the schema of a single remote service
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>                      Gateway configuration (required)
  -graphql.introspection <bool>       Enable GraphQL introspection (default: true)
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.forward-header <name>       Forward HTTP header to the services. Repeatable
  -server.cors-origin <origin>        Allow CORS requests from origin. Repeatable
  -server.cache-size N                Validated documents kept for reuse (default: 1000)
  -metrics.addr <addr>                Serve /metrics on a separate address
                                      (default: on the GraphQL address)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: stitchgraph)
  -log.level <level>                  debug, info, warn or error (default: info)
  -log.dev                            Human-readable console logs
`

const checkUsage = `check FLAGS:
  -config <file>           Gateway configuration (required)
  (No service is contacted; exits non-zero on errors)
`

const compileSDLUsage = `compile-sdl FLAGS:
  -config <file>           Gateway configuration (required)
  -out  <file>             Write stitched SDL to file (default: stdout)
  (Every service is introspected; exits non-zero on errors)
`

const introspectUsage = `introspect FLAGS:
  -url <url>               GraphQL endpoint of the service (required)
  -header <Name: value>    Send header with the request. Repeatable
  -timeout <duration>      Request timeout (default: 10s)
  -out  <file>             Write SDL to file (default: stdout)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "stitchgraph:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("stitchgraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		// print usage on parse error
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(ctx, cmdArgs, stderr)
	case "check":
		return cmdCheck(cmdArgs, stdout, stderr)
	case "compile-sdl":
		return cmdCompileSDL(ctx, cmdArgs, stdout, stderr)
	case "introspect":
		return cmdIntrospect(ctx, cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "check":
		fmt.Fprint(stdout, checkUsage)
	case "compile-sdl":
		fmt.Fprint(stdout, compileSDLUsage)
	case "introspect":
		fmt.Fprint(stdout, introspectUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type headerFlag struct {
	h map[string]string
}

func (f *headerFlag) String() string { return "" }

func (f *headerFlag) Set(v string) error {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid header %q", v)
	}
	name := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])
	if name == "" {
		return fmt.Errorf("invalid header %q", v)
	}
	if f.h == nil {
		f.h = map[string]string{}
	}
	f.h[name] = value
	return nil
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

type serveOptions struct {
	configPath    string
	introspection bool
	addr          string
	pretty        bool
	timeout       time.Duration
	forward       stringListFlag
	corsOrigins   stringListFlag
	cacheSize     int
	metricsAddr   string
	otelEndpoint  string
	otelService   string
	logLevel      string
	logDev        bool
}

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	o := serveOptions{
		introspection: true,
		addr:          ":8080",
		timeout:       10 * time.Second,
		cacheSize:     server.DefaultCacheSize,
		otelService:   "stitchgraph",
		logLevel:      "info",
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&o.configPath, "config", o.configPath, "Gateway configuration")
	fs.BoolVar(&o.introspection, "graphql.introspection", o.introspection, "Enable GraphQL introspection")
	fs.StringVar(&o.addr, "server.addr", o.addr, "HTTP listen address")
	fs.BoolVar(&o.pretty, "server.pretty", o.pretty, "Pretty-print JSON responses")
	fs.DurationVar(&o.timeout, "server.timeout", o.timeout, "Per-request timeout")
	fs.Var(&o.forward, "server.forward-header", "Forward HTTP header to the services")
	fs.Var(&o.corsOrigins, "server.cors-origin", "Allow CORS requests from origin")
	fs.IntVar(&o.cacheSize, "server.cache-size", o.cacheSize, "Validated documents kept for reuse")
	fs.StringVar(&o.metricsAddr, "metrics.addr", o.metricsAddr, "Separate metrics listen address")
	fs.StringVar(&o.otelEndpoint, "otel.endpoint", o.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&o.otelService, "otel.service", o.otelService, "OpenTelemetry service name")
	fs.StringVar(&o.logLevel, "log.level", o.logLevel, "Log level")
	fs.BoolVar(&o.logDev, "log.dev", o.logDev, "Human-readable console logs")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	if o.configPath == "" {
		fmt.Fprint(stderr, serveUsage)
		return fmt.Errorf("-config is required")
	}

	logger, err := newLogger(o.logLevel, o.logDev)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	shutdown, err := otel.Setup(o.otelEndpoint, o.otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer m.Attach(bus)()

	g, err := newGateway(ctx, o, m, logger)
	if err != nil {
		return err
	}
	defer g.close()

	errc := make(chan error, 2)
	go func() { errc <- serveListener(g.listener, g.srv) }()
	if g.metricsSrv != nil {
		go func() { errc <- serveListener(g.metricsListener, g.metricsSrv) }()
	}
	logger.Info("GraphQL server listening",
		zap.String("addr", g.listener.Addr().String()),
		zap.String("graphiql", "http://"+g.listener.Addr().String()+"/graphql"),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.shutdown(sctx)
}

// liveGateway is a built gateway bound to its listeners.
type liveGateway struct {
	sys             *gateway.System
	srv             *http.Server
	listener        net.Listener
	metricsSrv      *http.Server
	metricsListener net.Listener
}

func newGateway(ctx context.Context, o serveOptions, m *metrics.Metrics, logger *zap.Logger) (*liveGateway, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	sys, err := gateway.Build(ctx, cfg, logger, gateway.WithIntrospection(o.introspection))
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	sopts := []server.Option{server.WithCacheSize(o.cacheSize)}
	if o.pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if o.timeout > 0 {
		sopts = append(sopts, server.WithTimeout(o.timeout))
	}
	if len(o.forward) > 0 {
		sopts = append(sopts, server.WithForwardHeaders(o.forward...))
	}
	if len(o.corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(o.corsOrigins...))
	}
	h, err := server.New(sys, sopts...)
	if err != nil {
		_ = sys.Close()
		return nil, fmt.Errorf("server init: %w", err)
	}

	g := &liveGateway{sys: sys}
	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	if o.metricsAddr == "" {
		mux.Handle("/metrics", m.Handler())
	} else {
		mmux := http.NewServeMux()
		mmux.Handle("/metrics", m.Handler())
		g.metricsSrv = &http.Server{Handler: mmux, ReadHeaderTimeout: 5 * time.Second}
		if g.metricsListener, err = net.Listen("tcp", o.metricsAddr); err != nil {
			_ = sys.Close()
			return nil, err
		}
	}
	g.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(logger),
	}
	if g.listener, err = net.Listen("tcp", o.addr); err != nil {
		g.close()
		return nil, err
	}
	return g, nil
}

func serveListener(l net.Listener, srv *http.Server) error {
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *liveGateway) shutdown(ctx context.Context) error {
	var errs []error
	errs = append(errs, g.srv.Shutdown(ctx))
	if g.metricsSrv != nil {
		errs = append(errs, g.metricsSrv.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (g *liveGateway) close() {
	if g.listener != nil {
		_ = g.listener.Close()
	}
	if g.metricsListener != nil {
		_ = g.metricsListener.Close()
	}
	_ = g.sys.Close()
}

func cmdCheck(args []string, stdout, stderr io.Writer) error {
	configPath := ""
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "Gateway configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, checkUsage)
		return err
	}
	if configPath == "" {
		fmt.Fprint(stderr, checkUsage)
		return fmt.Errorf("-config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	exts, err := extension.Compile("extensions.graphql", cfg.Extensions)
	if err != nil {
		return err
	}
	bound := make(map[string]bool, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		bound[b.Type+"."+b.Field] = true
	}
	for _, d := range exts {
		if !bound[d.Coordinate()] {
			return fmt.Errorf("%s has no binding", d.Coordinate())
		}
	}
	fmt.Fprintf(stdout, "%s: %d services, %d extension fields, %d bindings\n",
		configPath, len(cfg.Services), len(exts), len(cfg.Bindings))
	return nil
}

func cmdCompileSDL(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	configPath := ""
	outFile := ""
	fs := flag.NewFlagSet("compile-sdl", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "Gateway configuration")
	fs.StringVar(&outFile, "out", outFile, "Write stitched SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, compileSDLUsage)
		return err
	}
	if configPath == "" {
		fmt.Fprint(stderr, compileSDLUsage)
		return fmt.Errorf("-config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sys, err := gateway.Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer sys.Close()
	return writeOutput(outFile, sys.SDL(), stdout)
}

func cmdIntrospect(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	uri := ""
	outFile := ""
	timeout := 10 * time.Second
	var headers headerFlag
	fs := flag.NewFlagSet("introspect", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&uri, "url", uri, "GraphQL endpoint of the service")
	fs.Var(&headers, "header", "Send header with the request")
	fs.DurationVar(&timeout, "timeout", timeout, "Request timeout")
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, introspectUsage)
		return err
	}
	if uri == "" {
		fmt.Fprint(stderr, introspectUsage)
		return fmt.Errorf("-url is required")
	}

	opts := []link.Option{link.WithTimeout(timeout)}
	for k, v := range headers.h {
		opts = append(opts, link.WithHeader(k, v))
	}
	l := link.NewHTTP(uri, opts...)
	defer l.Close()
	d, err := remote.Register(ctx, uri, uri, l)
	if err != nil {
		return err
	}
	return writeOutput(outFile, schema.Render(d.Schema), stdout)
}

func writeOutput(file, text string, stdout io.Writer) error {
	if file == "" {
		_, err := io.WriteString(stdout, text)
		return err
	}
	return os.WriteFile(file, []byte(text), 0644)
}
