package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"tradelens/internal/config"
	"tradelens/internal/dataprocessing"
	"tradelens/internal/infrastructure"
	"tradelens/internal/services"
	"tradelens/internal/validation"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitNoTrade = 3
)

// inputList collects repeated -in flags
type inputList []string

func (l *inputList) String() string { return strings.Join(*l, ",") }

func (l *inputList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	inputs  []string
	out     string
	summary string
	groups  []string
	level   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var (
		opts   options
		inputs inputList
		groups string
	)

	fs := flag.NewFlagSet("processor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Var(&inputs, "in", "ledger file or directory of ledgers (repeatable)")
	fs.StringVar(&opts.out, "out", "", "write the normalized ledger CSV to this path")
	fs.StringVar(&opts.summary, "summary", "", "write the analysis JSON to this path (- for stdout)")
	fs.StringVar(&groups, "group", "", "comma separated grouping keys (default: configured groups)")
	fs.StringVar(&opts.level, "log-level", "", "override the configured log level")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.inputs = append(inputs, fs.Args()...)
	if len(opts.inputs) == 0 {
		return opts, errors.New("at least one -in path is required")
	}
	if opts.out == "" && opts.summary == "" {
		opts.summary = "-"
	}
	for _, g := range strings.Split(groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			opts.groups = append(opts.groups, g)
		}
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load configuration: %v\n", err)
		return exitFailure
	}
	level := cfg.Logging.Level
	if opts.level != "" {
		level = opts.level
	}
	logger := infrastructure.NewLogger(stderr, level)

	groups, err := services.ParseGroups(opts.groups)
	if err != nil {
		logger.Error("Invalid grouping keys", slog.String("error", err.Error()))
		return exitUsage
	}

	files, err := validation.NewFileValidator(logger).CollectLedgerFiles(opts.inputs...)
	if err != nil {
		logger.Error("Invalid input", slog.String("error", err.Error()))
		return exitFailure
	}

	uploads, err := readUploads(files)
	if err != nil {
		logger.Error("Failed to read ledgers", slog.String("error", err.Error()))
		return exitFailure
	}

	ledgerCfg, err := services.LedgerConfigFrom(cfg)
	if err != nil {
		logger.Error("Invalid pipeline configuration", slog.String("error", err.Error()))
		return exitFailure
	}
	// local runs are bounded by the inputs given, not by upload limits
	ledgerCfg.MaxFiles = max(ledgerCfg.MaxFiles, len(uploads))
	for _, u := range uploads {
		ledgerCfg.MaxFileBytes = max(ledgerCfg.MaxFileBytes, int64(len(u.Data)))
	}
	ledgerCfg.CacheEnabled = false

	service, err := services.NewLedgerService(ledgerCfg, nil, nil, logger)
	if err != nil {
		logger.Error("Failed to create ledger service", slog.String("error", err.Error()))
		return exitFailure
	}

	start := time.Now()
	analysis, err := service.Analyze(ctx, uploads, groups)
	var empty *dataprocessing.EmptyResultError
	switch {
	case errors.As(err, &empty) && analysis != nil:
		logger.Warn("No trade survived normalization",
			slog.Int("rows_read", analysis.RowsRead),
			slog.Int("dropped", len(analysis.Dropped)))
		if werr := writeSummary(opts.summary, analysis, stdout); werr != nil {
			logger.Error("Failed to write summary", slog.String("error", werr.Error()))
		}
		return exitNoTrade
	case err != nil:
		logger.Error("Analysis failed", slog.String("error", err.Error()))
		return exitFailure
	}

	for _, d := range analysis.Dropped {
		logger.Warn("Row dropped",
			slog.String("source", d.Source),
			slog.Int("row", d.Row),
			slog.String("column", d.Column),
			slog.String("reason", d.Reason))
	}

	if opts.out != "" {
		if err := service.ExportFile(opts.out, analysis); err != nil {
			logger.Error("Failed to write ledger CSV", slog.String("path", opts.out), slog.String("error", err.Error()))
			return exitFailure
		}
		logger.Info("Ledger CSV written", slog.String("path", opts.out), slog.Int("trades", len(analysis.Trades)))
	}

	if err := writeSummary(opts.summary, analysis, stdout); err != nil {
		logger.Error("Failed to write summary", slog.String("error", err.Error()))
		return exitFailure
	}

	logger.Info("Processing complete",
		slog.Int("files", len(files)),
		slog.Int("rows_read", analysis.RowsRead),
		slog.Int("trades", analysis.Summary.TotalTrades),
		slog.Int64("total_profit", analysis.Summary.TotalProfit),
		slog.Duration("elapsed", time.Since(start)))
	return exitOK
}

func readUploads(files []string) ([]services.Upload, error) {
	uploads := make([]services.Upload, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, services.Upload{Name: filepath.Base(f), Data: data})
	}
	return uploads, nil
}

func writeSummary(path string, analysis *services.Analysis, stdout io.Writer) error {
	if path == "" {
		return nil
	}

	w := stdout
	if path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(analysis)
}
