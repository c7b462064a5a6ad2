package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tradelens/internal/config"
	"tradelens/internal/dataprocessing"
	apierrors "tradelens/internal/errors"
	"tradelens/internal/infrastructure"
	"tradelens/internal/shared/testutil"
	"tradelens/pkg/contracts/domain"
)

type serviceFixture struct {
	svc    *LedgerService
	reader *sdkmetric.ManualReader
	spans  *tracetest.SpanRecorder
}

func newFixture(t *testing.T, mutate func(*LedgerConfig)) serviceFixture {
	t.Helper()

	cfg := LedgerConfig{
		Normalizer:   dataprocessing.DefaultNormalizerConfig(),
		Encoding:     dataprocessing.EncodingAuto,
		MaxFiles:     5,
		MaxFileBytes: 1 << 20,
		CacheEnabled: true,
		CacheTTL:     time.Minute,
		CacheCleanup: time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := infrastructure.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	logger, _ := testutil.NewTestLogger(t)
	svc, err := NewLedgerService(cfg, tp.Tracer("test"), metrics, logger)
	require.NoError(t, err)
	return serviceFixture{svc: svc, reader: reader, spans: spans}
}

func (f serviceFixture) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func sampleUploads(t *testing.T) []Upload {
	return []Upload{
		{Name: "january.csv", Data: testutil.LedgerCSV(t,
			testutil.Trade("T1", "EUR/USD", "HIGH", 9, 0, 1950),
			testutil.Trade("T2", "USD/JPY", "LOW", 10, 0, 0),
		)},
		{Name: "february.xlsx", Data: testutil.LedgerXLSX(t,
			testutil.Trade("T3", "EUR/USD", "LOW", 8, 0, 1950),
		)},
	}
}

func tradeIDs(records []domain.TradeRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.TradeID()
	}
	return ids
}

func TestLedgerServiceAnalyze(t *testing.T) {
	f := newFixture(t, nil)

	analysis, err := f.svc.Analyze(context.Background(), sampleUploads(t), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, analysis.ID)
	assert.False(t, analysis.Cached)
	assert.Equal(t, []string{"january.csv", "february.xlsx"}, analysis.Sources)
	assert.Equal(t, 3, analysis.RowsRead)
	assert.Empty(t, analysis.Dropped)
	assert.Equal(t, []string{"T3", "T1", "T2"}, tradeIDs(analysis.Trades))

	s := analysis.Summary
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, int64(900), s.TotalProfit)
	assert.Len(t, s.EquityCurve, 3)

	require.Len(t, analysis.Groups, len(domain.GroupKeys))
	for i, table := range analysis.Groups {
		assert.Equal(t, domain.GroupKeys[i], table.By)
	}

	assert.Equal(t, int64(3), f.counter(t, "ledger_rows_read_total"))
	assert.Equal(t, int64(3), f.counter(t, "ledger_records_total"))
	assert.Equal(t, int64(1), f.counter(t, "ledger_analyses_total"))

	ended := f.spans.Ended()
	require.NotEmpty(t, ended)
	assert.Equal(t, "ledger.analyze", ended[len(ended)-1].Name())
}

func TestLedgerServiceAnalyzeSelectedGroups(t *testing.T) {
	f := newFixture(t, func(cfg *LedgerConfig) {
		cfg.DefaultGroups = []domain.GroupBy{domain.GroupByWeekday}
	})
	ctx := context.Background()

	analysis, err := f.svc.Analyze(ctx, sampleUploads(t), nil)
	require.NoError(t, err)
	require.Len(t, analysis.Groups, 1)
	assert.Equal(t, domain.GroupByWeekday, analysis.Groups[0].By)

	analysis, err = f.svc.Analyze(ctx, sampleUploads(t), []domain.GroupBy{domain.GroupByDirection, domain.GroupByHour})
	require.NoError(t, err)
	require.Len(t, analysis.Groups, 2)
	assert.Equal(t, domain.GroupByDirection, analysis.Groups[0].By)
	assert.Equal(t, domain.GroupByHour, analysis.Groups[1].By)
}

func TestLedgerServiceUploadErrors(t *testing.T) {
	tiny := func(cfg *LedgerConfig) { cfg.MaxFileBytes = 16 }
	single := func(cfg *LedgerConfig) { cfg.MaxFiles = 1 }

	tests := []struct {
		name     string
		mutate   func(*LedgerConfig)
		uploads  func(t *testing.T) []Upload
		sentinel error
		errType  apierrors.ErrorType
	}{
		{
			name:     "no files",
			uploads:  func(t *testing.T) []Upload { return nil },
			sentinel: ErrNoFiles,
			errType:  apierrors.ErrTypeValidation,
		},
		{
			name:     "too many files",
			mutate:   single,
			uploads:  sampleUploads,
			sentinel: ErrTooManyFiles,
			errType:  apierrors.ErrTypeValidation,
		},
		{
			name:     "file over the size limit",
			mutate:   tiny,
			uploads:  sampleUploads,
			sentinel: ErrFileTooLarge,
			errType:  apierrors.ErrTypeTooLarge,
		},
		{
			name:     "empty file",
			uploads:  func(t *testing.T) []Upload { return []Upload{{Name: "empty.csv"}} },
			sentinel: ErrEmptyFile,
			errType:  apierrors.ErrTypeValidation,
		},
		{
			name: "corrupt workbook",
			uploads: func(t *testing.T) []Upload {
				return []Upload{{Name: "broken.xlsx", Data: []byte("not a zip archive")}}
			},
			sentinel: ErrUnreadable,
			errType:  apierrors.ErrTypeParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)

			analysis, err := f.svc.Analyze(context.Background(), tt.uploads(t), nil)
			require.Error(t, err)
			assert.Nil(t, analysis)
			assert.ErrorIs(t, err, tt.sentinel)

			var appErr *apierrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.errType, appErr.Type)
		})
	}
}

func TestLedgerServiceBlankSourceKeepsLedgerError(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Analyze(context.Background(), []Upload{{Name: "blank.csv", Data: []byte("\n,,\n")}}, nil)
	assert.ErrorIs(t, err, dataprocessing.ErrEmptySource)
}

func TestLedgerServiceSchemaError(t *testing.T) {
	f := newFixture(t, nil)

	uploads := []Upload{{Name: "other.csv", Data: []byte("id,amount\n1,100\n")}}
	_, err := f.svc.Analyze(context.Background(), uploads, nil)

	var schemaErr *dataprocessing.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "other.csv", schemaErr.Source)
	assert.Equal(t, []string{"id", "amount"}, schemaErr.Present)
}

func TestLedgerServiceEmptyResultKeepsSummary(t *testing.T) {
	f := newFixture(t, nil)

	bad := testutil.Trade("T1", "EUR/USD", "HIGH", 9, 0, 1950)
	bad.Stake = "abc"
	worse := testutil.Trade("T2", "EUR/USD", "SIDEWAYS", 9, 5, 1950)
	uploads := []Upload{{Name: "bad.csv", Data: testutil.LedgerCSV(t, bad, worse)}}

	analysis, err := f.svc.Analyze(context.Background(), uploads, nil)

	var emptyErr *dataprocessing.EmptyResultError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, 2, emptyErr.Dropped)

	require.NotNil(t, analysis)
	assert.True(t, analysis.Summary.IsEmpty())
	assert.False(t, analysis.Summary.WinRate.Valid())
	assert.Empty(t, analysis.Trades)
	require.Len(t, analysis.Dropped, 2)
	assert.Equal(t, "購入金額", analysis.Dropped[0].Column)
	assert.Equal(t, "abc", analysis.Dropped[0].Value)
	assert.Equal(t, "HIGH/LOW", analysis.Dropped[1].Column)
	assert.Equal(t, int64(2), f.counter(t, "ledger_rows_dropped_total"))
}

func TestLedgerServiceAbortPolicy(t *testing.T) {
	f := newFixture(t, func(cfg *LedgerConfig) {
		cfg.Normalizer.Policy = dataprocessing.RowErrorAbort
	})

	bad := testutil.Trade("T2", "EUR/USD", "HIGH", 9, 5, 1950)
	bad.Payout = "¥1,9x0"
	uploads := []Upload{{Name: "mixed.csv", Data: testutil.LedgerCSV(t,
		testutil.Trade("T1", "EUR/USD", "HIGH", 9, 0, 1950), bad)}}

	analysis, err := f.svc.Analyze(context.Background(), uploads, nil)
	assert.Nil(t, analysis)

	var rowErr *dataprocessing.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 2, rowErr.Row)
	assert.Equal(t, "ペイアウト", rowErr.Column)
}

func TestLedgerServiceCache(t *testing.T) {
	ctx := context.Background()

	t.Run("identical uploads hit the cache", func(t *testing.T) {
		f := newFixture(t, nil)

		first, err := f.svc.Analyze(ctx, sampleUploads(t), nil)
		require.NoError(t, err)
		second, err := f.svc.Analyze(ctx, sampleUploads(t), nil)
		require.NoError(t, err)

		assert.True(t, second.Cached)
		assert.False(t, first.Cached, "the stored analysis must not be modified")
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Summary, second.Summary)
		assert.Equal(t, int64(1), f.counter(t, "ledger_cache_hits_total"))
		assert.Equal(t, int64(1), f.counter(t, "ledger_cache_misses_total"))
	})

	t.Run("changed bytes or groups miss", func(t *testing.T) {
		f := newFixture(t, nil)

		first, err := f.svc.Analyze(ctx, sampleUploads(t), nil)
		require.NoError(t, err)

		changed := sampleUploads(t)
		changed[0].Data = testutil.LedgerCSV(t, testutil.Trade("T1", "EUR/USD", "HIGH", 9, 0, 0))
		other, err := f.svc.Analyze(ctx, changed, nil)
		require.NoError(t, err)
		assert.False(t, other.Cached)
		assert.NotEqual(t, first.ID, other.ID)

		grouped, err := f.svc.Analyze(ctx, sampleUploads(t), []domain.GroupBy{domain.GroupByHour})
		require.NoError(t, err)
		assert.False(t, grouped.Cached)
	})

	t.Run("disabled cache recomputes", func(t *testing.T) {
		f := newFixture(t, func(cfg *LedgerConfig) { cfg.CacheEnabled = false })

		first, err := f.svc.Analyze(ctx, sampleUploads(t), nil)
		require.NoError(t, err)
		second, err := f.svc.Analyze(ctx, sampleUploads(t), nil)
		require.NoError(t, err)

		assert.False(t, second.Cached)
		assert.NotEqual(t, first.ID, second.ID)
	})
}

func TestLedgerServiceExport(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, sampleUploads(t), &buf))

	reread, err := f.svc.Analyze(ctx, []Upload{{Name: "processed_trade_data.csv", Data: buf.Bytes()}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T1", "T2"}, tradeIDs(reread.Trades))
	assert.Equal(t, int64(900), reread.Summary.TotalProfit)
}

func TestLedgerServiceExportEmptyResult(t *testing.T) {
	f := newFixture(t, nil)

	bad := testutil.Trade("T1", "EUR/USD", "HIGH", 9, 0, 1950)
	bad.OpenedAt = "yesterday"

	var buf bytes.Buffer
	err := f.svc.Export(context.Background(), []Upload{{Name: "bad.csv", Data: testutil.LedgerCSV(t, bad)}}, &buf)

	var emptyErr *dataprocessing.EmptyResultError
	assert.ErrorAs(t, err, &emptyErr)
	assert.Zero(t, buf.Len())
}

func TestLedgerServiceExportFile(t *testing.T) {
	f := newFixture(t, nil)

	analysis, err := f.svc.Analyze(context.Background(), sampleUploads(t), nil)
	require.NoError(t, err)

	path := t.TempDir() + "/out.csv"
	require.NoError(t, f.svc.ExportFile(path, analysis))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sheet, err := dataprocessing.ReadCSV(path, data, dataprocessing.EncodingAuto)
	require.NoError(t, err)
	assert.Len(t, sheet.Rows, 3)
}

func TestParseGroups(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []domain.GroupBy
		wantErr bool
	}{
		{name: "empty", in: nil, want: []domain.GroupBy{}},
		{
			name: "keeps order and drops duplicates",
			in:   []string{"hour", "weekday", "hour"},
			want: []domain.GroupBy{domain.GroupByHour, domain.GroupByWeekday},
		},
		{name: "unknown key", in: []string{"weekday", "minute"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGroups(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownGroup)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedgerConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Timezone = "UTC"
	cfg.Pipeline.MaxFiles = 3
	cfg.Pipeline.DefaultGroups = []string{"weekday"}

	lc, err := LedgerConfigFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, lc.Normalizer.Location)
	assert.Equal(t, 3, lc.MaxFiles)
	assert.Equal(t, cfg.Pipeline.MaxUploadBytes, lc.MaxFileBytes)
	assert.Equal(t, []domain.GroupBy{domain.GroupByWeekday}, lc.DefaultGroups)
	assert.Equal(t, cfg.Cache.TTL, lc.CacheTTL)

	cfg.Pipeline.DefaultGroups = []string{"minute"}
	_, err = LedgerConfigFrom(cfg)
	var appErr *apierrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apierrors.ErrTypeConfig, appErr.Type)
}
