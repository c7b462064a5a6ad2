package dataprocessing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelens/pkg/contracts/domain"
)

func mustRecord(t *testing.T, id, instrument string, dir domain.Direction, open time.Time, seconds int, payout int64) domain.TradeRecord {
	t.Helper()
	rec, err := domain.NewTradeRecord(domain.TradeInput{
		TradeID:    id,
		OpenedAt:   open,
		ClosedAt:   open.Add(time.Duration(seconds) * time.Second),
		Instrument: instrument,
		Direction:  dir,
		Stake:      1000,
		Payout:     payout,
	})
	require.NoError(t, err)
	return rec
}

func groupingFixture(t *testing.T) []domain.TradeRecord {
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, jst)
	return []domain.TradeRecord{
		mustRecord(t, "1", "USDJPY", domain.DirectionHigh, monday.Add(9*time.Hour), 15, 1900),
		mustRecord(t, "2", "USDJPY", domain.DirectionHigh, monday.Add(9*time.Hour+time.Minute), 15, 0),
		mustRecord(t, "3", "EURJPY", domain.DirectionLow, monday.Add(2*24*time.Hour+20*time.Hour), 300, 1850),
		mustRecord(t, "4", "USDJPY", domain.DirectionLow, monday.Add(5*24*time.Hour+13*time.Hour), 185, 0),
	}
}

func keys(table domain.GroupTable) []string {
	out := make([]string, len(table.Rows))
	for i, r := range table.Rows {
		out[i] = r.Key
	}
	return out
}

func TestGroupFixedOrderings(t *testing.T) {
	records := groupingFixture(t)

	tests := []struct {
		by       domain.GroupBy
		wantKeys []string
	}{
		{domain.GroupByWeekday, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}},
		{domain.GroupByTimeBucket, []string{"NIGHT", "MORNING", "AFTERNOON", "EVENING"}},
		{domain.GroupByDurationBucket, []string{"15s", "30s", "1m", "3m", "5m", "OTHER"}},
		{domain.GroupByDirection, []string{"HIGH", "LOW"}},
		{domain.GroupByInstrument, []string{"EURJPY", "USDJPY"}},
		{domain.GroupByInstrumentDirection, []string{"EURJPY/HIGH", "EURJPY/LOW", "USDJPY/HIGH", "USDJPY/LOW"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.by), func(t *testing.T) {
			table, err := Group(records, tt.by)
			require.NoError(t, err)
			assert.Equal(t, tt.by, table.By)
			assert.Equal(t, tt.wantKeys, keys(table))

			total := 0
			for _, row := range table.Rows {
				total += row.Count
				if row.Count == 0 {
					assert.Zero(t, row.Wins)
					assert.Zero(t, row.WinRate)
					assert.Zero(t, row.TotalProfit)
				}
			}
			assert.Equal(t, len(records), total)
		})
	}
}

func TestGroupHourCoversTheDay(t *testing.T) {
	table, err := Group(groupingFixture(t), domain.GroupByHour)
	require.NoError(t, err)
	require.Len(t, table.Rows, 24)
	assert.Equal(t, "00", table.Rows[0].Key)
	assert.Equal(t, "23", table.Rows[23].Key)
	assert.Equal(t, 2, table.Rows[9].Count)
	assert.Equal(t, 1, table.Rows[13].Count)
	assert.Equal(t, 1, table.Rows[20].Count)
}

func TestGroupAggregates(t *testing.T) {
	table, err := Group(groupingFixture(t), domain.GroupByWeekday)
	require.NoError(t, err)

	monday := table.Rows[0]
	assert.Equal(t, 2, monday.Count)
	assert.Equal(t, 1, monday.Wins)
	assert.Equal(t, 0.5, monday.WinRate)
	assert.Equal(t, int64(-100), monday.TotalProfit)

	wednesday := table.Rows[2]
	assert.Equal(t, 1, wednesday.Count)
	assert.Equal(t, 1.0, wednesday.WinRate)
	assert.Equal(t, int64(850), wednesday.TotalProfit)

	saturday := table.Rows[5]
	assert.Equal(t, 1, saturday.Count)
	assert.Equal(t, int64(-1000), saturday.TotalProfit)

	durations, err := Group(groupingFixture(t), domain.GroupByDurationBucket)
	require.NoError(t, err)
	assert.Equal(t, []string{"15秒"}, durations.Rows[0].Labels)
	assert.Equal(t, 2, durations.Rows[0].Count)
	assert.Equal(t, 1, durations.Rows[3].Count) // 185s sits in the 3m window
	assert.Equal(t, 1, durations.Rows[4].Count)

	pairs, err := Group(groupingFixture(t), domain.GroupByInstrumentDirection)
	require.NoError(t, err)
	assert.Equal(t, []string{"EURJPY", "HIGH"}, pairs.Rows[0].Labels)
	assert.Zero(t, pairs.Rows[0].Count)
}

func TestGroupIsOrderIndependent(t *testing.T) {
	records := groupingFixture(t)
	shuffled := append([]domain.TradeRecord(nil), records...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, by := range domain.GroupKeys {
		want, err := Group(records, by)
		require.NoError(t, err)
		got, err := Group(shuffled, by)
		require.NoError(t, err)
		assert.Equal(t, want, got, string(by))
	}
}

func TestGroupEmptyInput(t *testing.T) {
	table, err := Group(nil, domain.GroupByTimeBucket)
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)
	for _, row := range table.Rows {
		assert.Zero(t, row.Count)
	}

	instTable, err := Group(nil, domain.GroupByInstrument)
	require.NoError(t, err)
	assert.Empty(t, instTable.Rows)
}

func TestGroupAll(t *testing.T) {
	tables, err := GroupAll(groupingFixture(t), []domain.GroupBy{domain.GroupByDirection, domain.GroupByWeekday})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, domain.GroupByDirection, tables[0].By)
	assert.Equal(t, domain.GroupByWeekday, tables[1].By)

	_, err = GroupAll(nil, []domain.GroupBy{"minute"})
	assert.Error(t, err)
}
