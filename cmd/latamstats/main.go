package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/latamstats/internal/config"
	"github.com/lox/latamstats/internal/metrics"
)

type CLI struct {
	Config      string `help:"YAML file overlaid on the built-in configuration." env:"LATAMSTATS_CONFIG" type:"path"`
	DB          string `help:"SQLite archive of runs and raw payloads. Empty disables archiving." env:"LATAMSTATS_DB" default:"data/latamstats.db"`
	Dataset     string `help:"Dataset CSV path. Defaults to the configured dataset_path." env:"LATAMSTATS_DATASET"`
	MetricsFile string `help:"Write Prometheus metrics to this file on exit." env:"LATAMSTATS_METRICS_FILE" name:"metrics-file"`

	Fetch     FetchCmd     `cmd:"" help:"Fetch indicators, merge them and write the dataset CSV."`
	Describe  DescribeCmd  `cmd:"" help:"Print indicator metadata and summary statistics of the dataset."`
	Plots     PlotsCmd     `cmd:"" help:"Render the exploratory charts from the dataset."`
	Regress   RegressCmd   `cmd:"" help:"Fit the poverty regression and write its diagnostics."`
	Trend     TrendCmd     `cmd:"" help:"Fit the GDP trend and forecast the target year."`
	Summarize SummarizeCmd `cmd:"" help:"Ask an OpenAI model for a commentary on the dataset."`
	Publish   PublishCmd   `cmd:"" help:"Upload the dataset and charts to an FTP server."`
	Runs      RunsCmd      `cmd:"" help:"Show recent pipeline runs and ingest health."`
}

// app is bound into every command's Run method.
type app struct {
	ctx context.Context
	cli *CLI
	cfg config.Config
}

func (a *app) datasetPath() string {
	if a.cli.Dataset != "" {
		return a.cli.Dataset
	}
	return a.cfg.DatasetPath
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("latamstats"),
		kong.Description("South American development indicators from the World Bank."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := kctx.Run(&app{ctx: ctx, cli: &cli, cfg: cfg})

	if cli.MetricsFile != "" {
		if err := metrics.WriteTextfile(cli.MetricsFile); err != nil {
			log.Printf("metrics: write %s: %v", cli.MetricsFile, err)
		}
	}

	if runErr != nil {
		cancel()
		log.Fatalf("%s: %v", kctx.Command(), runErr)
	}
}
