// Command cexcheck runs read-only preflight checks against every configured exchange client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/alert"
	"github.com/chia4/cex-api/internal/config"
	"github.com/chia4/cex-api/internal/exchange/gate"
	"github.com/chia4/cex-api/internal/exchange/mexc"
	"github.com/chia4/cex-api/internal/exchange/rest"
	"github.com/chia4/cex-api/internal/logging"
	"github.com/chia4/cex-api/internal/telemetry"
)

type report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Exchanges  []string      `json:"exchanges"`
	Checks     []checkResult `json:"checks"`
}

func main() {
	var (
		configPath  string
		envPath     string
		timeoutSec  int
		parallel    int
		outJSONPath string
		checkFlag   string
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file loaded before the config")
	flag.IntVar(&timeoutSec, "timeout-sec", 60, "total timeout seconds")
	flag.IntVar(&parallel, "parallel", 4, "checks run concurrently")
	flag.StringVar(&outJSONPath, "out-json", "", "optional output report path")
	flag.StringVar(&checkFlag, "check", "default", "checks to run: default | all | comma list ("+strings.Join(defaultChecks, ",")+",...)")
	flag.Parse()

	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		fatal(fmt.Sprintf("load %s: %v", envPath, err))
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	checks, err := parseCheckFlag(checkFlag)
	if err != nil {
		fatal(err.Error())
	}
	if timeoutSec < 5 {
		timeoutSec = 5
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fatal(err.Error())
	}
	log := logrus.NewEntry(logger).WithField("app", "cexcheck")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	metrics, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Observability.Metrics.OTLPEndpoint,
		Insecure:     cfg.Observability.Metrics.Insecure,
		Interval:     time.Duration(cfg.Observability.Metrics.ExportIntervalSec) * time.Second,
	})
	if err != nil {
		fatal(err.Error())
	}

	alerter, closeAlerts := buildAlerter(cfg, log)

	targets, err := buildTargets(cfg, alerter, log)
	if err != nil {
		fatal(err.Error())
	}

	r := report{StartedAt: time.Now().UTC(), Exchanges: cfg.Enabled()}
	r.Checks = runChecks(ctx, targets, checks, parallel)
	r.FinishedAt = time.Now().UTC()

	for _, c := range r.Checks {
		printResult(c)
	}
	printSummary(r)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	closeAlerts(shutdownCtx)
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics shutdown")
	}

	if outJSONPath != "" {
		if err := writeReport(outJSONPath, r); err != nil {
			fatal(err.Error())
		}
	}
	if failed(r) {
		os.Exit(2)
	}
}

func buildAlerter(cfg config.Config, log *logrus.Entry) (alert.Alerter, func(context.Context)) {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return alert.LogAlerter{Log: log}, func(context.Context) {}
	}
	notifier := alert.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBaseURL, time.Duration(tg.TimeoutSec)*time.Second)
	m := alert.NewManagerWithOptions("cexcheck", notifier, alert.ManagerOptions{
		DropReportInterval: time.Duration(cfg.Observability.Runtime.AlertDropReportSec) * time.Second,
		Logger:             log,
	})
	return m, func(ctx context.Context) {
		if err := m.Close(ctx); err != nil {
			log.WithError(err).Warn("alert manager close")
		}
	}
}

func buildTargets(cfg config.Config, alerter alert.Alerter, log *logrus.Entry) ([]target, error) {
	var targets []target
	for _, name := range cfg.Enabled() {
		ex, _ := cfg.Exchange(name)
		t := target{
			name:          name,
			spotSymbol:    ex.SpotSymbol,
			futuresSymbol: ex.FuturesSymbol,
			quote:         ex.QuoteCurrency,
			minBalance:    ex.MinBalance(),
			depthLimit:    cfg.Depth.Limit,
			window:        cfg.HistoryWindow(),
		}
		creds := rest.Credentials{Key: ex.APIKey, Secret: ex.APISecret}
		exLog := log.WithField("exchange", name)
		switch name {
		case config.ExchangeMEXC:
			opts := mexc.Options{
				Credentials: creds,
				Retry:       cfg.RetryPolicy(),
				Alerter:     alerter,
				Logger:      exLog,
				MaxSkew:     cfg.MaxSkew(),
				Leverage:    ex.Leverage,
				BuyTIF:      cfg.Spot.BuyTIF,
				SellTIF:     cfg.Spot.SellTIF,
			}
			opts.Transport = cfg.TransportOptions(ex)
			opts.Transport.BaseURL = ex.SpotBaseURL
			spot, err := mexc.NewSpotClient(opts)
			if err != nil {
				return nil, err
			}
			opts.Transport.BaseURL = ex.FuturesBaseURL
			futures, err := mexc.NewFuturesClient(opts)
			if err != nil {
				return nil, err
			}
			t.spot, t.futures = spot, futures
		case config.ExchangeGate:
			opts := gate.Options{
				Credentials: creds,
				Retry:       cfg.RetryPolicy(),
				Alerter:     alerter,
				Logger:      exLog,
				MaxSkew:     cfg.MaxSkew(),
				Leverage:    ex.Leverage,
				BuyTIF:      cfg.Spot.BuyTIF,
				SellTIF:     cfg.Spot.SellTIF,
			}
			opts.Transport = cfg.TransportOptions(ex)
			opts.Transport.BaseURL = ex.SpotBaseURL
			spot, err := gate.NewSpotClient(opts)
			if err != nil {
				return nil, err
			}
			opts.Transport.BaseURL = ex.FuturesBaseURL
			futures, err := gate.NewFuturesClient(opts)
			if err != nil {
				return nil, err
			}
			t.spot, t.futures = spot, futures
			stream, err := gate.NewBookTickerStream(gate.StreamOptions{
				URL:                ex.WSURL,
				MaxSkew:            cfg.MaxSkew(),
				Logger:             exLog,
				SourceAddr:         opts.Transport.SourceAddr,
				InsecureSkipVerify: opts.Transport.InsecureSkipVerify,
				HandshakeTimeout:   opts.Transport.Timeout,
			})
			if err != nil {
				return nil, err
			}
			t.stream = stream
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func printResult(c checkResult) {
	switch c.Status {
	case statusPass, statusSkip:
		fmt.Printf("[%s] %s/%s (%dms)", c.Status, c.Exchange, c.Name, c.DurationMs)
		if c.Detail != "" {
			fmt.Printf(" - %s", c.Detail)
		}
		fmt.Println()
	default:
		fmt.Printf("[FAIL] %s/%s (%dms) - %s\n", c.Exchange, c.Name, c.DurationMs, c.Error)
	}
}

func printSummary(r report) {
	counts := map[checkStatus]int{}
	for _, c := range r.Checks {
		counts[c.Status]++
	}
	fmt.Printf("\nsummary exchanges=%s pass=%d fail=%d skip=%d duration=%s\n",
		strings.Join(r.Exchanges, ","),
		counts[statusPass],
		counts[statusFail],
		counts[statusSkip],
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
	)
}

func failed(r report) bool {
	for _, c := range r.Checks {
		if c.Status == statusFail {
			return true
		}
	}
	return false
}

func writeReport(path string, r report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(msg))
	os.Exit(1)
}
