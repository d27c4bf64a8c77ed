package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ettle/strcase"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	router "github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-metricsboard/components/dashboard"
	"github.com/goliatone/go-metricsboard/components/dashboard/gorouter"
	"github.com/goliatone/go-metricsboard/components/dashboard/httpapi"
	"github.com/goliatone/go-metricsboard/pkg/backend"
	"github.com/goliatone/go-metricsboard/pkg/config"
	metricsboard "github.com/goliatone/go-metricsboard/pkg/dashboard"
)

//go:embed demo_seed.yaml
var demoSeed []byte

type cli struct {
	Serve    serveCmd    `cmd:"" help:"Serve the dashboard API over HTTP."`
	Sanitize sanitizeCmd `cmd:"" help:"Sanitize a filter configuration against metric capabilities."`
	Seed     seedCmd     `cmd:"" help:"Inspect memory backend seed files."`
}

type serveCmd struct {
	Config    string        `type:"path" help:"Path to the YAML configuration file."`
	Addr      string        `help:"Listen address (overrides server.address)."`
	Transport string        `default:"fiber" enum:"fiber,http" help:"HTTP stack: fiber (go-router) or http (net/http ServeMux)."`
	Demo      bool          `help:"Serve the bundled demo seed from an in-memory backend."`
	Latency   time.Duration `default:"0s" help:"Artificial latency for the in-memory backend."`
}

type sanitizeCmd struct {
	Filters      string    `required:"" type:"existingfile" help:"JSON file with the filter configuration or a persisted settings blob."`
	Capabilities string    `type:"existingfile" help:"YAML file with the metric capabilities."`
	References   string    `type:"existingfile" help:"YAML file mapping entity dimensions to reference lists."`
	SeedFile     string    `name:"seed" type:"existingfile" help:"Seed file to take capabilities and references from."`
	Metric       int64     `help:"Metric id inside --seed."`
	Format       string    `default:"text" enum:"text,json" help:"Output format."`
	out          io.Writer `kong:"-"`
}

type seedCmd struct {
	Validate seedValidateCmd `cmd:"" help:"Validate a seed file."`
}

type seedValidateCmd struct {
	Path string    `arg:"" type:"existingfile" help:"Seed file to validate."`
	out  io.Writer `kong:"-"`
}

func main() {
	ctx := kong.Parse(&cli{},
		kong.Description("Metrics dashboard server and filter tooling."),
		kong.UsageOnError(),
	)
	err := ctx.Run(context.Background())
	ctx.FatalIfErrorf(err)
}

func (cmd *serveCmd) Run(parent context.Context) error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Server.Address = cmd.Addr
	}
	logger, err := config.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := metricsboard.Deps{
		Logger:     logger,
		Registerer: reg,
		Hooks: []dashboard.EventHook{&dashboard.NotificationsHook{
			Client:  logNotifications{logger: logger.Named("notifications")},
			Channel: "dashboard",
		}},
	}
	if cmd.Demo {
		seed, err := backend.DecodeSeed(bytes.NewReader(demoSeed))
		if err != nil {
			return fmt.Errorf("metricsctl: demo seed: %w", err)
		}
		deps.Backend = backend.NewMemoryBackend(seed, backend.MemoryOptions{Latency: cmd.Latency})
	}

	rt, err := metricsboard.Assemble(cfg, deps)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := rt.Orchestrator.LoadDashboards(ctx); err != nil {
		logger.Warn("initial dashboard list failed", zap.Error(err))
	} else if handle, err := rt.Orchestrator.LoadDashboard(ctx, 0); err != nil {
		logger.Warn("initial dashboard load failed", zap.Error(err))
	} else {
		<-handle.Done()
	}

	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	logger.Info("dashboard api ready",
		zap.String("address", cfg.Server.Address),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("transport", cmd.Transport),
		zap.String("backend", cfg.Backend.Driver),
		zap.String("cache", cfg.Cache.Driver),
	)
	if cmd.Transport == "http" {
		return serveHTTP(ctx, logger, cfg, rt, metrics)
	}
	return serveFiber(ctx, logger, cfg, rt, metrics)
}

func serveFiber(ctx context.Context, logger *zap.Logger, cfg *config.Config, rt *metricsboard.Runtime, metrics http.Handler) error {
	server := router.NewFiberAdapter()
	if err := gorouter.Register(gorouter.Config[*fiber.App]{
		Router:    server.Router(),
		API:       rt.Executor,
		Reader:    rt.Reader,
		Broadcast: rt.Broadcast,
		BasePath:  cfg.Server.BasePath,
	}); err != nil {
		return fmt.Errorf("metricsctl: register routes: %w", err)
	}
	server.WrappedRouter().Get(cfg.Observability.MetricsPath, adaptor.HTTPHandler(metrics))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(cfg.Server.Address)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func serveHTTP(ctx context.Context, logger *zap.Logger, cfg *config.Config, rt *metricsboard.Runtime, metrics http.Handler) error {
	api := http.NewServeMux()
	httpapi.Handlers{Executor: rt.Executor, Reader: rt.Reader}.Mount(api)
	api.HandleFunc("GET /events", rt.Broadcast.ServeSSE)
	api.HandleFunc("GET /ws", rt.Broadcast.ServeWebSocket)

	base := strings.TrimRight(cfg.Server.BasePath, "/")
	mux := http.NewServeMux()
	mux.Handle(base+"/", http.StripPrefix(base, api))
	mux.Handle(cfg.Observability.MetricsPath, metrics)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (cmd *sanitizeCmd) Run(ctx context.Context) error {
	if err := cmd.validate(); err != nil {
		return err
	}
	raw, err := os.ReadFile(cmd.Filters)
	if err != nil {
		return fmt.Errorf("metricsctl: read filters: %w", err)
	}
	input := dashboard.DecodeFilterSettings(raw).Filters

	caps, refs, err := cmd.load()
	if err != nil {
		return err
	}
	out, report := dashboard.Sanitize(ctx, input, caps, refs)

	w := cmd.out
	if w == nil {
		w = os.Stdout
	}
	if cmd.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Filters dashboard.FilterConfig   `json:"filters"`
			Report  dashboard.SanitizeReport `json:"report"`
		}{out, report})
	}
	return writeReport(w, out, report)
}

func (cmd *sanitizeCmd) validate() error {
	switch {
	case cmd.SeedFile == "" && cmd.Capabilities == "":
		return errors.New("metricsctl: --capabilities or --seed is required")
	case cmd.SeedFile != "" && cmd.Metric <= 0:
		return errors.New("metricsctl: --metric is required with --seed")
	}
	return nil
}

func (cmd *sanitizeCmd) load() (dashboard.Capabilities, dashboard.StaticReferences, error) {
	refs := dashboard.StaticReferences{}
	var caps dashboard.Capabilities
	if cmd.SeedFile != "" {
		seed, err := backend.ReadSeed(cmd.SeedFile)
		if err != nil {
			return caps, nil, err
		}
		found := false
		for _, m := range seed.Metrics {
			if m.ID == cmd.Metric {
				found = true
				if m.Capabilities != nil {
					caps = m.Capabilities.Clone()
				}
			}
		}
		if !found {
			return caps, nil, fmt.Errorf("metricsctl: seed has no metric %d", cmd.Metric)
		}
		for dim, items := range seed.References {
			refs[dim] = items
		}
	}
	if cmd.Capabilities != "" {
		if err := readYAML(cmd.Capabilities, &caps); err != nil {
			return caps, nil, err
		}
	}
	if cmd.References != "" {
		var lists map[dashboard.Dimension][]dashboard.ReferenceItem
		if err := readYAML(cmd.References, &lists); err != nil {
			return caps, nil, err
		}
		for dim, items := range lists {
			if !dim.IsEntity() {
				return caps, nil, fmt.Errorf("metricsctl: references use non-entity dimension %q", dim)
			}
			refs[dim] = items
		}
	}
	return caps, refs, nil
}

func readYAML(path string, target any) error {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("metricsctl: open %s: %w", path, err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("metricsctl: decode %s: %w", path, err)
	}
	return nil
}

func writeReport(w io.Writer, out dashboard.FilterConfig, report dashboard.SanitizeReport) error {
	buf, err := json.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "filters: %s\n", buf)
	if !report.Changed() {
		fmt.Fprintln(w, "unchanged")
		return nil
	}
	for _, d := range report.Dropped {
		fmt.Fprintln(w, diagnosticLine("dropped", d))
	}
	for _, d := range report.Replaced {
		fmt.Fprintln(w, diagnosticLine("replaced", d))
	}
	return nil
}

func diagnosticLine(action string, d dashboard.FieldDiagnostic) string {
	line := fmt.Sprintf("%-8s %s", action, strcase.ToSnake(d.Field))
	if d.Value != "" {
		line += "=" + d.Value
	}
	return line + ": " + d.Reason
}

func (cmd *seedValidateCmd) Run(_ context.Context) error {
	seed, err := backend.ReadSeed(cmd.Path)
	if err != nil {
		return err
	}
	w := cmd.out
	if w == nil {
		w = os.Stdout
	}
	bindings := 0
	for _, d := range seed.Dashboards {
		bindings += len(d.Metrics)
	}
	fmt.Fprintf(w, "%s: ok (version %s, %d metrics, %d dashboards, %d bindings, %d reference lists)\n",
		seed.Source, seed.Version, len(seed.Metrics), len(seed.Dashboards), bindings, len(seed.References))
	return nil
}

// logNotifications writes dashboard failures to the log in place of a
// notifications service.
type logNotifications struct {
	logger *zap.Logger
}

func (n logNotifications) PublishDashboardEvent(_ context.Context, channel string, event dashboard.DashboardEvent) error {
	n.logger.Warn("dashboard failure",
		zap.String("channel", channel),
		zap.String("kind", string(event.Kind)),
		zap.Int64("dashboard_id", event.DashboardID),
		zap.String("error", event.Error),
	)
	return nil
}
