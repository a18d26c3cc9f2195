package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"QuantMini/internal/di"
	"QuantMini/internal/export"
	"QuantMini/internal/usecase"
	"QuantMini/pkg/config"
	applogger "QuantMini/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", ".env", "dotenv file with credentials")
	symbol := flag.String("symbol", "", "ticker to export (required)")
	start := flag.String("start", "", "start date, defaults to the lookback window")
	end := flag.String("end", "", "end date, defaults to today")
	timeframe := flag.String("timeframe", "1Day", "bar timeframe")
	mode := flag.String("as", "series", "latest or series; parquet output requires series")
	out := flag.String("out", "", "output file, .parquet or .json (required)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	if *symbol == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("env load failed: %v", err)
	}
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	// keep stdout clean for piping
	cfg.Log.Output = "stderr"
	cfg.Kafka.LogCollector.Enabled = false

	f, err := di.InitializeFactors(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = run(ctx, f, usecase.FactorsParams{
		Symbol:    *symbol,
		Start:     *start,
		End:       *end,
		Timeframe: *timeframe,
		Mode:      *mode,
	}, *out)
	cancel()
	if cerr := f.Close(); cerr != nil {
		log.Printf("close: %v", cerr)
	}
	if err != nil {
		log.Printf("factors-export: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *di.Factors, p usecase.FactorsParams, out string) error {
	sym, err := usecase.NormalizeSymbol(p.Symbol)
	if err != nil {
		return err
	}
	p.Symbol = sym
	res, err := f.UseCase.GetFactors(ctx, p)
	if err != nil {
		return fmt.Errorf("compute factors %s: %w", p.Symbol, err)
	}
	if res.IsAbsent() {
		return fmt.Errorf("no data to export for %s: %s", p.Symbol, res.Absent)
	}
	if err := export.Write(out, p.Symbol, res); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	f.Logger.Info("factors exported",
		applogger.String("symbol", p.Symbol),
		applogger.String("out", out),
		applogger.Int("rows", res.Rows()))
	return nil
}
