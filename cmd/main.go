package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/config"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/eventsource/netlink"
	"github.com/kubescape/process-monitor/pkg/eventsource/procinfo"
	"github.com/kubescape/process-monitor/pkg/eventsource/procscan"
	"github.com/kubescape/process-monitor/pkg/eventsource/wmi"
	"github.com/kubescape/process-monitor/pkg/exporters"
	"github.com/kubescape/process-monitor/pkg/healthmanager"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	metricprometheus "github.com/kubescape/process-monitor/pkg/metricsmanager/prometheus"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
	processmonitorv1 "github.com/kubescape/process-monitor/pkg/processmonitor/v1"
	"github.com/kubescape/process-monitor/pkg/recordconsumer"
	"github.com/kubescape/process-monitor/pkg/utils"
)

func main() {
	ctx := context.Background()

	configDir := "/etc/config"
	if envPath := os.Getenv(config.ConfigDirEnvVar); envPath != "" {
		configDir = envPath
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Ctx(ctx).Error("load config error", helpers.Error(err))
		os.Exit(utils.ExitCodeInvalidConfig)
	}

	hostName, err := os.Hostname()
	if err != nil {
		logger.L().Warning("failed to get hostname", helpers.Error(err))
	}

	// to enable otel, set OTEL_COLLECTOR_SVC=otel-collector:4317
	if otelHost, present := os.LookupEnv("OTEL_COLLECTOR_SVC"); present {
		ctx = logger.InitOtel("process-monitor",
			os.Getenv("RELEASE"),
			"",
			hostName,
			url.URL{Host: otelHost})
		defer logger.ShutdownOtel(ctx)
	}

	if _, present := os.LookupEnv("ENABLE_PROFILER"); present {
		logger.L().Info("starting profiler on port 6060")
		go func() {
			_ = http.ListenAndServe("localhost:6060", nil)
		}()
	}

	if pyroscopeServerSvc, present := os.LookupEnv("PYROSCOPE_SERVER_SVC"); present {
		logger.L().Info("starting pyroscope profiler")
		_, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "process-monitor",
			ServerAddress:   pyroscopeServerSvc,
			Logger:          pyroscope.StandardLogger,
			Tags:            map[string]string{"host": hostName, "source": cfg.EventSource},
		})
		if err != nil {
			logger.L().Ctx(ctx).Error("error starting pyroscope", helpers.Error(err))
		}
	}

	// Start the health manager
	healthManager := healthmanager.NewHealthManager(cfg.HealthPort)
	healthManager.Start(ctx)

	// Create Prometheus metrics exporter
	var prometheusExporter metricsmanager.MetricsManager
	if cfg.EnablePrometheusExporter {
		prometheusExporter = metricprometheus.NewPrometheusMetric(cfg.PrometheusPort, cfg.EventSource)
	} else {
		prometheusExporter = metricsmanager.NewMetricsMock()
	}
	prometheusExporter.Start()
	defer prometheusExporter.Destroy()

	exporterBus, err := exporters.InitExporters(cfg.Exporters, hostName)
	if err != nil {
		logger.L().Ctx(ctx).Error("error initializing exporters", helpers.Error(err))
		os.Exit(utils.ExitCodeInvalidConfig)
	}

	connector := newConnector(cfg)

	if cfg.OneShot {
		code := collectOnce(ctx, cfg, connector, exporterBus, prometheusExporter)
		if err := exporterBus.Close(); err != nil {
			logger.L().Warning("error closing exporters", helpers.Error(err))
		}
		os.Exit(code)
	}

	records := processmonitor.NewRecordChannel(cfg.ChannelCapacity, cfg.SendTimeout)
	monitor := processmonitorv1.CreateProcessMonitor(cfg, connector, records, prometheusExporter)
	healthManager.SetMonitor(monitor)
	if err := monitor.Connect(ctx); err != nil {
		logger.L().Ctx(ctx).Error("error connecting to the event source", helpers.Error(err), helpers.String("source", connector.Name()))
		os.Exit(exitCode(err))
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	var consumerDone sync.WaitGroup
	consumerDone.Add(1)
	go func() {
		defer consumerDone.Done()
		recordconsumer.NewRecordConsumer(records, exporterBus, cfg.ConsumerPollInterval).Run(consumerCtx)
	}()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	supervisorErr := make(chan error, 1)
	go func() {
		supervisorErr <- processmonitorv1.NewSupervisor(monitor, cfg.Reconnect, prometheusExporter).Run(monitorCtx)
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	code := utils.ExitCodeSuccess
	select {
	case sig := <-shutdown:
		switch sig {
		case os.Interrupt:
			logger.L().Info("Received interrupt signal")
		case syscall.SIGTERM:
			logger.L().Info("Received SIGTERM signal")
		default:
			logger.L().Info("Received unknown signal")
			code = utils.ExitCodeError
		}
		stopMonitor()
		if err := <-supervisorErr; err != nil {
			logger.L().Ctx(ctx).Error("process monitor stopped with error", helpers.Error(err))
		}
	case err := <-supervisorErr:
		stopMonitor()
		if err != nil {
			logger.L().Ctx(ctx).Error("process monitor stopped", helpers.Error(err))
			code = exitCode(err)
		}
	}

	// the monitor is the only producer, so closing here cannot race a send
	records.Close()
	stopConsumer()
	consumerDone.Wait()
	if err := exporterBus.Close(); err != nil {
		logger.L().Warning("error closing exporters", helpers.Error(err))
	}
	if err := monitor.Close(); err != nil {
		logger.L().Warning("error closing process monitor", helpers.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthManager.Stop(stopCtx)

	if code != utils.ExitCodeSuccess {
		prometheusExporter.Destroy()
		os.Exit(code)
	}
}

// collectOnce pulls a single batch and exports it directly.
func collectOnce(ctx context.Context, cfg config.Config, connector eventsource.Connector, exporter exporters.Exporter, metrics metricsmanager.MetricsManager) int {
	monitor := processmonitorv1.CreateProcessMonitor(cfg, connector, nil, metrics)
	defer monitor.Close()

	records, err := monitor.Collect(ctx)
	if err != nil {
		logger.L().Ctx(ctx).Error("error collecting process records", helpers.Error(err), helpers.String("source", connector.Name()))
		return exitCode(err)
	}
	for _, record := range records {
		exporter.SendProcessRecord(record)
	}
	logger.L().Info("collected process records", helpers.Int("records", len(records)))
	return utils.ExitCodeSuccess
}

func newConnector(cfg config.Config) eventsource.Connector {
	switch cfg.EventSource {
	case config.EventSourceWMI:
		return wmi.NewConnector(wmi.DefaultNamespace)
	case config.EventSourceProcScan:
		return procscan.NewConnector(procinfo.DefaultMountPoint, procscan.DefaultScanInterval)
	default:
		return netlink.NewConnector(procinfo.DefaultMountPoint)
	}
}

func exitCode(err error) int {
	var connErr *processmonitor.ConnectionError
	switch {
	case errors.Is(err, errors.ErrUnsupported):
		return utils.ExitCodeUnsupportedPlatform
	case errors.As(err, &connErr):
		return utils.ExitCodeConnectionFailed
	default:
		return utils.ExitCodeError
	}
}
