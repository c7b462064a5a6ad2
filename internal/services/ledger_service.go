package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tradelens/internal/config"
	"tradelens/internal/dataprocessing"
	apierrors "tradelens/internal/errors"
	"tradelens/internal/exporter"
	"tradelens/internal/infrastructure"
	"tradelens/pkg/contracts/domain"
)

// Upload is one ledger file as received.
type Upload struct {
	Name string
	Data []byte
}

// DroppedRow describes a row the skip policy left out of the result.
type DroppedRow struct {
	Source string `json:"source"`
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// Analysis is the result of one ingest-compute cycle over a batch of
// ledgers. It is shared read-only between cache readers.
type Analysis struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	Cached    bool                     `json:"cached"`
	Sources   []string                 `json:"sources"`
	RowsRead  int                      `json:"rows_read"`
	Dropped   []DroppedRow             `json:"dropped"`
	Summary   domain.SummaryStatistics `json:"summary"`
	Groups    []domain.GroupTable      `json:"groups"`
	Trades    []domain.TradeRecord     `json:"trades"`
}

// LedgerConfig configures LedgerService.
type LedgerConfig struct {
	Normalizer    dataprocessing.NormalizerConfig
	Encoding      dataprocessing.SourceEncoding
	MaxFiles      int
	MaxFileBytes  int64
	DefaultGroups []domain.GroupBy

	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheCleanup    time.Duration
	ReadConcurrency int
}

// LedgerConfigFrom maps the application config.
func LedgerConfigFrom(cfg *config.Config) (LedgerConfig, error) {
	nc, err := cfg.Pipeline.NormalizerConfig()
	if err != nil {
		return LedgerConfig{}, apierrors.NewConfigError("pipeline", err)
	}
	groups, err := ParseGroups(cfg.Pipeline.DefaultGroups)
	if err != nil {
		return LedgerConfig{}, apierrors.NewConfigError("pipeline default groups", err)
	}
	return LedgerConfig{
		Normalizer:    nc,
		Encoding:      cfg.Pipeline.Encoding(),
		MaxFiles:      cfg.Pipeline.MaxFiles,
		MaxFileBytes:  cfg.Pipeline.MaxUploadBytes,
		DefaultGroups: groups,
		CacheEnabled:  cfg.Cache.Enabled,
		CacheTTL:      cfg.Cache.TTL,
		CacheCleanup:  cfg.Cache.CleanupInterval,
	}, nil
}

// ParseGroups converts grouping key names. Duplicates are kept once, in
// first-seen order.
func ParseGroups(names []string) ([]domain.GroupBy, error) {
	groups := make([]domain.GroupBy, 0, len(names))
	seen := make(map[domain.GroupBy]bool, len(names))
	for _, name := range names {
		g, err := domain.ParseGroupBy(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	return groups, nil
}

// LedgerService reads uploaded ledgers, normalizes them and computes
// statistics and groupings. Results are memoized by the content of the
// uploads.
type LedgerService struct {
	cfg        LedgerConfig
	normalizer *dataprocessing.Normalizer
	writer     *exporter.LedgerCSVWriter
	cache      *cache.Cache
	cfgDigest  uint64
	tracer     trace.Tracer
	metrics    *infrastructure.PipelineMetrics
	logger     *slog.Logger
}

// NewLedgerService builds the service. tracer and metrics may be nil.
func NewLedgerService(cfg LedgerConfig, tracer trace.Tracer, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*LedgerService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer(infrastructure.MeterName)
	}
	if len(cfg.DefaultGroups) == 0 {
		cfg.DefaultGroups = domain.GroupKeys
	}
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = runtime.NumCPU()
	}

	normalizer, err := dataprocessing.NewNormalizer(cfg.Normalizer, logger)
	if err != nil {
		return nil, apierrors.NewConfigError("normalizer", err)
	}
	cfg.Normalizer = normalizer.Config()

	s := &LedgerService{
		cfg:        cfg,
		normalizer: normalizer,
		writer:     exporter.NewLedgerCSVWriter(cfg.Normalizer.Columns, normalizer.Dates()),
		cfgDigest:  configDigest(cfg),
		tracer:     tracer,
		metrics:    metrics,
		logger:     logger.With(slog.String("service", "ledger")),
	}
	if cfg.CacheEnabled {
		s.cache = cache.New(cfg.CacheTTL, cfg.CacheCleanup)
	}

	s.logger.Info("LedgerService initialized",
		slog.String("timezone", cfg.Normalizer.Location.String()),
		slog.String("date_layout", cfg.Normalizer.DateLayout),
		slog.String("row_error_policy", string(cfg.Normalizer.Policy)),
		slog.Bool("cache_enabled", cfg.CacheEnabled))
	return s, nil
}

// Config returns the effective configuration.
func (s *LedgerService) Config() LedgerConfig { return s.cfg }

// Analyze runs the full pipeline over uploads. groups selects the grouping
// tables; nil means the configured defaults.
//
// When no trade survives normalization the returned error is a
// *dataprocessing.EmptyResultError and the analysis, with its empty
// summary, is returned alongside it.
func (s *LedgerService) Analyze(ctx context.Context, uploads []Upload, groups []domain.GroupBy) (*Analysis, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.analyze",
		trace.WithAttributes(attribute.Int("ledger.files", len(uploads))))
	defer span.End()

	start := time.Now()
	analysis, err := s.analyze(ctx, uploads, groups)
	s.metrics.RecordAnalysis(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return analysis, err
	}
	span.SetAttributes(
		attribute.Int("ledger.trades", analysis.Summary.TotalTrades),
		attribute.Bool("ledger.cached", analysis.Cached))
	return analysis, nil
}

// Export normalizes uploads and writes them to w as a ledger CSV.
func (s *LedgerService) Export(ctx context.Context, uploads []Upload, w io.Writer) error {
	ctx, span := s.tracer.Start(ctx, "ledger.export")
	defer span.End()

	analysis, err := s.analyze(ctx, uploads, []domain.GroupBy{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.writer.Write(w, analysis.Trades); err != nil {
		return fmt.Errorf("write ledger csv: %w", err)
	}
	infrastructure.AddSpanEvent(ctx, "ledger.exported", attribute.Int("ledger.trades", len(analysis.Trades)))
	return nil
}

// ExportFile writes an analysis' trades to path.
func (s *LedgerService) ExportFile(path string, analysis *Analysis) error {
	return s.writer.WriteFile(path, analysis.Trades)
}

func (s *LedgerService) analyze(ctx context.Context, uploads []Upload, groups []domain.GroupBy) (*Analysis, error) {
	if err := s.checkUploads(uploads); err != nil {
		return nil, err
	}
	if groups == nil {
		groups = s.cfg.DefaultGroups
	}

	key := s.cacheKey(uploads, groups)
	if cached, ok := s.lookup(ctx, key); ok {
		return cached, nil
	}

	sheets, err := s.readAll(ctx, uploads)
	if err != nil {
		return nil, err
	}

	result, err := s.normalizer.Normalize(ctx, sheets...)
	var emptyErr *dataprocessing.EmptyResultError
	if err != nil && !errors.As(err, &emptyErr) {
		return nil, err
	}
	s.metrics.RecordNormalization(ctx, result.RowsRead, len(result.Dropped), len(result.Records))
	infrastructure.AddSpanEvent(ctx, "ledger.normalized",
		attribute.Int("ledger.rows_read", result.RowsRead),
		attribute.Int("ledger.rows_dropped", len(result.Dropped)))

	analysis := &Analysis{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Sources:   result.Sources,
		RowsRead:  result.RowsRead,
		Dropped:   droppedRows(result.Dropped),
		Summary:   dataprocessing.Summarize(result.Records),
		Groups:    []domain.GroupTable{},
		Trades:    result.Records,
	}
	if emptyErr != nil {
		return analysis, err
	}

	tables, err := dataprocessing.GroupAll(result.Records, groups)
	if err != nil {
		return nil, err
	}
	analysis.Groups = tables

	if s.cache != nil {
		s.cache.Set(key, analysis, cache.DefaultExpiration)
	}

	s.logger.InfoContext(ctx, "ledger analyzed",
		slog.String("analysis_id", analysis.ID),
		slog.Int("files", len(uploads)),
		slog.Int("trades", analysis.Summary.TotalTrades),
		slog.Int64("total_profit", analysis.Summary.TotalProfit),
		slog.Int("dropped", len(analysis.Dropped)))
	return analysis, nil
}

func (s *LedgerService) checkUploads(uploads []Upload) error {
	if len(uploads) == 0 {
		return apierrors.NewAppError(apierrors.ErrTypeValidation, "at least one ledger file is required", ErrNoFiles)
	}
	if s.cfg.MaxFiles > 0 && len(uploads) > s.cfg.MaxFiles {
		return apierrors.NewAppError(apierrors.ErrTypeValidation,
			fmt.Sprintf("%d files uploaded, at most %d allowed", len(uploads), s.cfg.MaxFiles), ErrTooManyFiles).
			WithContext("max_files", s.cfg.MaxFiles)
	}
	for _, u := range uploads {
		if len(u.Data) == 0 {
			return apierrors.NewAppError(apierrors.ErrTypeValidation, u.Name+" is empty", ErrEmptyFile).
				WithContext("source", u.Name)
		}
		if s.cfg.MaxFileBytes > 0 && int64(len(u.Data)) > s.cfg.MaxFileBytes {
			return apierrors.NewAppError(apierrors.ErrTypeTooLarge,
				fmt.Sprintf("%s exceeds %d bytes", u.Name, s.cfg.MaxFileBytes), ErrFileTooLarge).
				WithContext("source", u.Name).
				WithContext("limit_bytes", s.cfg.MaxFileBytes)
		}
	}
	return nil
}

// readAll parses uploads concurrently. Sheets keep the upload order so the
// merge is deterministic.
func (s *LedgerService) readAll(ctx context.Context, uploads []Upload) ([]dataprocessing.Sheet, error) {
	sheets := make([]dataprocessing.Sheet, len(uploads))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ReadConcurrency)

	for i, u := range uploads {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sheet, err := dataprocessing.ReadSource(u.Name, u.Data, s.cfg.Encoding)
			if err != nil {
				if errors.Is(err, dataprocessing.ErrEmptySource) {
					return err
				}
				return apierrors.NewParsingError(u.Name+" could not be read", fmt.Errorf("%w: %w", ErrUnreadable, err)).
					WithContext("source", u.Name)
			}
			sheets[i] = sheet
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "ledger read failed", slog.String("error", err.Error()))
		return nil, err
	}
	return sheets, nil
}

func (s *LedgerService) lookup(ctx context.Context, key string) (*Analysis, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(key)
	s.metrics.RecordCacheLookup(ctx, ok)
	if !ok {
		return nil, false
	}
	hit := *v.(*Analysis)
	hit.Cached = true
	s.logger.DebugContext(ctx, "analysis served from cache", slog.String("analysis_id", hit.ID))
	return &hit, true
}

// cacheKey digests the configuration, the requested groups and every
// upload's name and bytes.
func (s *LedgerService) cacheKey(uploads []Upload, groups []domain.GroupBy) string {
	d := xxhash.New()
	for _, g := range groups {
		_, _ = d.WriteString(string(g))
		_, _ = d.WriteString("\x00")
	}
	for _, u := range uploads {
		_, _ = d.WriteString(u.Name)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(strconv.Itoa(len(u.Data)))
		_, _ = d.Write(u.Data)
	}
	return strconv.FormatUint(s.cfgDigest, 16) + "-" + strconv.FormatUint(d.Sum64(), 16)
}

func configDigest(cfg LedgerConfig) uint64 {
	nc := cfg.Normalizer
	c := nc.Columns
	d := xxhash.New()
	for _, part := range []string{
		nc.Location.String(), nc.DateLayout, string(nc.Policy), string(cfg.Encoding),
		c.OpenedAt, c.Stake, c.Payout, c.ClosedAt, c.Instrument, c.Direction, c.TradeID,
	} {
		_, _ = d.WriteString(part)
		_, _ = d.WriteString("\x00")
	}
	for _, ig := range c.Ignored {
		_, _ = d.WriteString(ig)
		_, _ = d.WriteString("\x00")
	}
	return d.Sum64()
}

func droppedRows(errs []*dataprocessing.RowError) []DroppedRow {
	rows := make([]DroppedRow, 0, len(errs))
	for _, e := range errs {
		rows = append(rows, DroppedRow{
			Source: e.Source,
			Row:    e.Row,
			Column: e.Column,
			Value:  e.Value,
			Reason: e.Cause.Error(),
		})
	}
	return rows
}
