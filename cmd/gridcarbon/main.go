// Command gridcarbon is the thin CLI collaborator spec.md §6 describes:
// now, forecast, seed, ingest, serve, status, and factors, each driving
// pkg/service/pkg/ingest/internal/adminhttp directly — no REST façade,
// per the non-goals. Flag/command wiring follows the teacher's
// pkg/api/cli/cli.go and cmd/cacct/main.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pwkasay/gridcarbon/internal/adminhttp"
	"github.com/pwkasay/gridcarbon/internal/common"
	"github.com/pwkasay/gridcarbon/internal/config"
	"github.com/pwkasay/gridcarbon/pkg/forecaster"
	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
	"github.com/pwkasay/gridcarbon/pkg/ingest"
	"github.com/pwkasay/gridcarbon/pkg/metrics"
	"github.com/pwkasay/gridcarbon/pkg/nyiso"
	"github.com/pwkasay/gridcarbon/pkg/openweather"
	"github.com/pwkasay/gridcarbon/pkg/pipeline"
	"github.com/pwkasay/gridcarbon/pkg/service"
	"github.com/pwkasay/gridcarbon/pkg/store"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

// Exit codes per spec.md §6.
const (
	exitOK              = 0
	exitDataUnavailable = 1
	exitMisconfigured   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	app := kingpin.New("gridcarbon", "Carbon-intensity ingestion and forecasting for the NYISO grid.")
	app.HelpFlag.Short('h')

	configFile := app.Flag("config.file", "Path to gridcarbon configuration file.").
		Envar("GRIDCARBON_CONFIG_FILE").Default("").String()

	nowCmd := app.Command("now", "Show the current carbon intensity.")

	forecastCmd := app.Command("forecast", "Show the carbon-intensity forecast.")
	forecastHours := forecastCmd.Flag("hours", "Hours ahead to forecast (1-48).").Default("24").Int()
	forecastWindow := forecastCmd.Flag("window", "Window length in hours for cleanest/dirtiest (1-12).").Default("4").Int()

	seedCmd := app.Command("seed", "Backfill historical fuel-mix (and weather) data.")
	seedDays := seedCmd.Flag("days", "Number of days of history to seed, ending today.").Default("7").Int()
	seedNoWeather := seedCmd.Flag("no-weather", "Skip seeding weather history.").Default("false").Bool()

	ingestCmd := app.Command("ingest", "Run continuous fuel-mix and weather ingestion headlessly (no HTTP surface) until interrupted.")
	ingestInterval := ingestCmd.Flag("interval", "Fuel-mix poll interval in seconds.").Default("0").Int()
	ingestWeatherInterval := ingestCmd.Flag("weather-interval", "Weather poll interval in seconds.").Default("0").Int()

	serveCmd := app.Command("serve", "Run continuous fuel-mix and weather ingestion plus the admin/metrics HTTP surface (/metrics, /healthz, /status) until interrupted. Do not also run 'ingest' against the same database while 'serve' is running — each starts its own pollers and would duplicate writes.")
	serveHost := serveCmd.Flag("host", "Listen host (overrides the config file's server.listen_address).").Default("").String()
	servePort := serveCmd.Flag("port", "Listen port (overrides the config file's server.listen_address).").Default("0").Int()

	statusCmd := app.Command("status", "Show ingestion status and recent events.")
	statusEventType := statusCmd.Flag("event-type", "Filter recent events by type.").Default("").String()

	factorsCmd := app.Command("factors", "List the fixed emission-factor registry.")

	cmd, err := app.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gridcarbon: failed to parse CLI flags:", err)
		return exitMisconfigured
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gridcarbon: failed to load config:", err)
		return exitMisconfigured
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	level.Info(logger).Log("msg", "starting gridcarbon", "command", cmd, "database", common.RedactDSN(cfg.DatabaseURL))

	s, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open store", "err", err)
		return exitMisconfigured
	}
	defer s.Close()

	fuelClient := nyiso.NewClient(logger)
	weatherClient := openweather.NewClient(logger)
	engine := forecaster.NewEngine(s, logger, forecaster.WithPersistenceHours(cfg.Persistence.PersistenceHours))
	svc := service.New(s, fuelClient, weatherClient, engine, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case nowCmd.FullCommand():
		return runNow(ctx, svc)
	case forecastCmd.FullCommand():
		return runForecast(ctx, svc, *forecastHours, *forecastWindow)
	case seedCmd.FullCommand():
		return runSeed(ctx, logger, s, fuelClient, weatherClient, cfg, *seedDays, !*seedNoWeather)
	case ingestCmd.FullCommand():
		return runIngest(ctx, logger, s, fuelClient, weatherClient, cfg, *ingestInterval, *ingestWeatherInterval)
	case serveCmd.FullCommand():
		return runServe(ctx, logger, s, *serveHost, *servePort, fuelClient, weatherClient, cfg)
	case statusCmd.FullCommand():
		return runStatus(ctx, svc, *statusEventType)
	case factorsCmd.FullCommand():
		return runFactors(svc)
	default:
		fmt.Fprintln(os.Stderr, "gridcarbon: unknown command", cmd)
		return exitMisconfigured
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}

	return common.MakeConfig[config.Config](path)
}

func newTableWriter() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	return t
}

func runNow(ctx context.Context, svc *service.Service) int {
	result, err := svc.CurrentIntensity(ctx)
	if err != nil {
		return reportErr(err)
	}

	t := newTableWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Intensity", fmt.Sprintf("%.1f gCO2/kWh", result.Intensity.GramsCO2PerKWh)})
	t.AppendRow(table.Row{"Category", result.Label})
	t.AppendRow(table.Row{"Recommendation", result.Recommendation})
	t.AppendRow(table.Row{"Source", string(result.Source)})
	t.AppendSeparator()

	for _, b := range result.Breakdown {
		t.AppendRow(table.Row{b.Category.String(), fmt.Sprintf("%.1f MW", b.GenerationMW)})
	}

	t.Render()

	return exitOK
}

func runForecast(ctx context.Context, svc *service.Service, hours, windowHours int) int {
	result, err := svc.Forecast(ctx, hours, windowHours)
	if err != nil {
		return reportErr(err)
	}

	t := newTableWriter()
	t.AppendHeader(table.Row{"Hour", "Predicted gCO2/kWh", "Confidence"})

	for _, h := range result.Forecast.Hourly {
		t.AppendRow(table.Row{h.Hour.Format("Mon 15:04"), fmt.Sprintf("%.1f", h.Predicted.GramsCO2PerKWh), h.Confidence})
	}

	t.Render()

	fmt.Printf("\nCleanest %dh window: %s - %s (%.1f gCO2/kWh)\n",
		windowHours, result.Cleanest.Start.Format("Mon 15:04"), result.Cleanest.End.Format("Mon 15:04"), result.Cleanest.Average.GramsCO2PerKWh)
	fmt.Printf("Dirtiest %dh window: %s - %s (%.1f gCO2/kWh)\n",
		windowHours, result.Dirtiest.Start.Format("Mon 15:04"), result.Dirtiest.End.Format("Mon 15:04"), result.Dirtiest.Average.GramsCO2PerKWh)

	return exitOK
}

func runSeed(ctx context.Context, logger log.Logger, s *store.Store, fuelFetcher nyiso.Fetcher, weatherFetcher openweather.Fetcher, cfg *config.Config, days int, withWeather bool) int {
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	pcfg := pipeline.Config{ChannelCapacity: cfg.Pipeline.ChannelCapacitySeed, DrainTimeout: cfg.Pipeline.DrainTimeoutSeed()}

	fuelResult, err := ingest.BuildFuelMixSeedPipeline(logger, s, fuelFetcher, start, end, pcfg).Run(ctx)
	if err != nil {
		level.Error(logger).Log("msg", "fuel-mix seed failed", "err", err)
		return reportErr(err)
	}

	level.Info(logger).Log("msg", "fuel-mix seed complete", "summary", fuelResult.Summary())

	if withWeather {
		weatherResult, err := ingest.BuildWeatherSeedPipeline(logger, s, weatherFetcher, start, end, pcfg).Run(ctx)
		if err != nil {
			level.Error(logger).Log("msg", "weather seed failed", "err", err)
			return reportErr(err)
		}

		level.Info(logger).Log("msg", "weather seed complete", "summary", weatherResult.Summary())
	}

	return exitOK
}

// continuousPipelines bundles the fuel-mix and weather continuous pipelines
// a long-running command drives together, plus the collector both feed.
type continuousPipelines struct {
	fuel      *pipeline.Pipeline[*fuel.Mix]
	weather   *pipeline.Pipeline[weather.Snapshot]
	collector *metrics.StageCollector
}

// buildContinuousPipelines wires the fuel-mix and weather continuous
// pipelines the same way for every command that drives them (runIngest and
// runServe), composing each pipeline's collector.Observer sink alongside
// the metricsToStore sink the builders already register via WithMetrics —
// both sinks fan out from the same periodic snapshot hook.
func buildContinuousPipelines(logger log.Logger, s *store.Store, fuelFetcher nyiso.Fetcher, weatherFetcher openweather.Fetcher, fuelInterval, weatherInterval time.Duration, pcfg pipeline.Config) *continuousPipelines {
	collector := metrics.NewStageCollector()

	fuelPipeline := ingest.BuildFuelMixContinuousPipeline(logger, s, fuelFetcher, fuelInterval, pcfg)
	fuelPipeline.AddMetricsObserver(collector.Observer("gridcarbon-ingest-fuelmix"))

	weatherPipeline := ingest.BuildWeatherContinuousPipeline(logger, s, weatherFetcher, weatherInterval, pcfg)
	weatherPipeline.AddMetricsObserver(collector.Observer("gridcarbon-ingest-weather"))

	return &continuousPipelines{fuel: fuelPipeline, weather: weatherPipeline, collector: collector}
}

// run starts both pipelines and blocks until ctx is cancelled and both have
// drained, logging each one's summary on exit.
func (cp *continuousPipelines) run(ctx context.Context, logger log.Logger) {
	var wg sync.WaitGroup

	var fuelResult, weatherResult *pipeline.Result

	wg.Add(2)

	go func() {
		defer wg.Done()

		r, err := cp.fuel.Run(ctx)
		fuelResult = r

		if err != nil {
			level.Error(logger).Log("msg", "fuel-mix ingestion stopped with error", "err", err)
		}
	}()

	go func() {
		defer wg.Done()

		r, err := cp.weather.Run(ctx)
		weatherResult = r

		if err != nil {
			level.Error(logger).Log("msg", "weather ingestion stopped with error", "err", err)
		}
	}()

	<-ctx.Done()
	level.Info(logger).Log("msg", "shutdown signal received, draining pipelines")

	wg.Wait()

	if fuelResult != nil {
		level.Info(logger).Log("msg", "fuel-mix ingestion stopped", "summary", fuelResult.Summary())
	}

	if weatherResult != nil {
		level.Info(logger).Log("msg", "weather ingestion stopped", "summary", weatherResult.Summary())
	}
}

func runIngest(ctx context.Context, logger log.Logger, s *store.Store, fuelFetcher nyiso.Fetcher, weatherFetcher openweather.Fetcher, cfg *config.Config, fuelIntervalSeconds, weatherIntervalSeconds int) int {
	fuelInterval := cfg.Ingest.FuelMixPollInterval()
	if fuelIntervalSeconds > 0 {
		fuelInterval = time.Duration(fuelIntervalSeconds) * time.Second
	}

	weatherInterval := cfg.Ingest.WeatherPollInterval()
	if weatherIntervalSeconds > 0 {
		weatherInterval = time.Duration(weatherIntervalSeconds) * time.Second
	}

	pcfg := pipeline.Config{
		ChannelCapacity: cfg.Pipeline.ChannelCapacityContinuous,
		DrainTimeout:    cfg.Pipeline.DrainTimeoutContinuous(),
		MetricsInterval: cfg.Metrics.MetricsInterval(),
	}

	cp := buildContinuousPipelines(logger, s, fuelFetcher, weatherFetcher, fuelInterval, weatherInterval, pcfg)

	level.Info(logger).Log("msg", "continuous ingestion running, press Ctrl+C to stop")
	cp.run(ctx, logger)

	return exitOK
}

// runServe runs the same continuous pipelines runIngest does and, in
// addition, exposes their live StageCollector over /metrics — the
// teacher's ceems_exporter pattern of collecting and serving in one
// process, so §4.G's "real Prometheus collectors over live pipeline
// snapshots" has actual pipeline activity to report rather than an
// always-empty registry.
func runServe(ctx context.Context, logger log.Logger, s *store.Store, host string, port int, fuelFetcher nyiso.Fetcher, weatherFetcher openweather.Fetcher, cfg *config.Config) int {
	pcfg := pipeline.Config{
		ChannelCapacity: cfg.Pipeline.ChannelCapacityContinuous,
		DrainTimeout:    cfg.Pipeline.DrainTimeoutContinuous(),
		MetricsInterval: cfg.Metrics.MetricsInterval(),
	}

	cp := buildContinuousPipelines(logger, s, fuelFetcher, weatherFetcher, cfg.Ingest.FuelMixPollInterval(), cfg.Ingest.WeatherPollInterval(), pcfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(cp.collector)

	addr := cfg.Server.ListenAddress
	if host != "" || port != 0 {
		// --host/--port were set explicitly, overriding server.listen_address.
		if host == "" {
			host = "0.0.0.0"
		}

		if port == 0 {
			port = 9323
		}

		addr = fmt.Sprintf("%s:%d", host, port)
	}

	srv := adminhttp.New(addr, logger, s, registry)

	pipelinesDone := make(chan struct{})

	go func() {
		defer close(pipelinesDone)
		cp.run(ctx, logger)
	}()

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		// The admin server died on its own (e.g. the port is taken) while
		// ctx is still live, so the pipelines would otherwise run forever:
		// exit without waiting for pipelinesDone.
		if err != nil {
			level.Error(logger).Log("msg", "admin server exited with error", "err", err)
			return exitMisconfigured
		}

		return exitOK
	case <-ctx.Done():
		level.Info(logger).Log("msg", "shutdown signal received, stopping admin server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			level.Error(logger).Log("msg", "failed to shut down admin server cleanly", "err", err)
		}

		<-pipelinesDone

		return exitOK
	}
}

func runStatus(ctx context.Context, svc *service.Service, eventType string) int {
	status, err := svc.AdminStatus(ctx, eventType)
	if err != nil {
		return reportErr(err)
	}

	t := newTableWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Active", status.IsActive})
	t.AppendRow(table.Row{"Record count", status.RecordCount})

	if status.LatestTimestamp != nil {
		t.AppendRow(table.Row{"Latest timestamp", status.LatestTimestamp.Format(time.RFC3339)})
		t.AppendRow(table.Row{"Time since latest", common.FormatDuration(time.Since(*status.LatestTimestamp))})
	}

	t.Render()

	if len(status.RecentEvents) > 0 {
		fmt.Println()

		et := newTableWriter()
		et.AppendHeader(table.Row{"Timestamp", "Event", "Stage", "Message"})

		for _, e := range status.RecentEvents {
			et.AppendRow(table.Row{e.Timestamp.Format(time.RFC3339), e.EventType, e.StageName, e.Message})
		}

		et.Render()
	}

	return exitOK
}

func runFactors(svc *service.Service) int {
	t := newTableWriter()
	t.AppendHeader(table.Row{"Fuel", "gCO2/kWh", "Source"})

	for _, f := range svc.EmissionFactors() {
		t.AppendRow(table.Row{f.Fuel, f.GramsCO2PerKWh, f.Source})
	}

	t.Render()

	return exitOK
}

// reportErr classifies a service-layer error into an exit code and prints
// a message, per spec.md §6: data-unavailable (1) for missing data,
// misconfigured (2) for bad arguments or anything else.
func reportErr(err error) int {
	fmt.Fprintln(os.Stderr, "gridcarbon:", err)

	var insufficient *gcerrors.InsufficientHistoricalDataError
	if errors.As(err, &insufficient) {
		return exitDataUnavailable
	}

	return exitMisconfigured
}
