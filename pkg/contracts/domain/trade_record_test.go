package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokyo = time.FixedZone("JST", 9*60*60)

func at(hour, minute, sec int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, sec, 0, tokyo) // Monday
}

func TestNewTradeRecord(t *testing.T) {
	tests := []struct {
		name           string
		input          TradeInput
		wantErr        error
		wantProfit     int64
		wantOutcome    Outcome
		wantWeekday    Weekday
		wantTimeBucket TimeBucket
		wantDuration   DurationBucket
	}{
		{
			name: "winning 15 second trade",
			input: TradeInput{TradeID: "1", Instrument: "USDJPY", Direction: DirectionHigh,
				OpenedAt: at(9, 0, 0), ClosedAt: at(9, 0, 15), Stake: 1000, Payout: 1900},
			wantProfit:     900,
			wantOutcome:    OutcomeWin,
			wantWeekday:    Monday,
			wantTimeBucket: TimeBucketMorning,
			wantDuration:   Duration15s,
		},
		{
			name: "losing 30 second trade",
			input: TradeInput{TradeID: "2", Instrument: "USDJPY", Direction: DirectionLow,
				OpenedAt: at(10, 0, 0), ClosedAt: at(10, 0, 30), Stake: 1000, Payout: 0},
			wantProfit:     -1000,
			wantOutcome:    OutcomeLose,
			wantWeekday:    Monday,
			wantTimeBucket: TimeBucketMorning,
			wantDuration:   Duration30s,
		},
		{
			name: "break-even is a loss",
			input: TradeInput{TradeID: "3", Instrument: "EURJPY", Direction: DirectionHigh,
				OpenedAt: at(18, 0, 0), ClosedAt: at(18, 3, 5), Stake: 500, Payout: 500},
			wantProfit:     0,
			wantOutcome:    OutcomeLose,
			wantWeekday:    Monday,
			wantTimeBucket: TimeBucketEvening,
			wantDuration:   Duration3m,
		},
		{
			name: "zero duration is other",
			input: TradeInput{TradeID: "4", Instrument: "EURJPY", Direction: DirectionHigh,
				OpenedAt: at(0, 0, 0), ClosedAt: at(0, 0, 0), Stake: 500, Payout: 900},
			wantProfit:     400,
			wantOutcome:    OutcomeWin,
			wantWeekday:    Monday,
			wantTimeBucket: TimeBucketNight,
			wantDuration:   DurationOther,
		},
		{
			name: "closed before opened",
			input: TradeInput{TradeID: "5", Direction: DirectionHigh,
				OpenedAt: at(9, 0, 1), ClosedAt: at(9, 0, 0)},
			wantErr: ErrClosedBeforeOpened,
		},
		{
			name: "negative stake",
			input: TradeInput{TradeID: "6", Direction: DirectionHigh,
				OpenedAt: at(9, 0, 0), ClosedAt: at(9, 0, 0), Stake: -1},
			wantErr: ErrNegativeAmount,
		},
		{
			name: "missing direction",
			input: TradeInput{TradeID: "7",
				OpenedAt: at(9, 0, 0), ClosedAt: at(9, 0, 0)},
			wantErr: ErrInvalidDirection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewTradeRecord(tt.input)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProfit, rec.Profit())
			assert.Equal(t, rec.Payout()-rec.Stake(), rec.Profit())
			assert.Equal(t, tt.wantOutcome, rec.Outcome())
			assert.Equal(t, rec.Profit() > 0, rec.IsWin())
			assert.Equal(t, tt.wantWeekday, rec.Weekday())
			assert.Equal(t, tt.wantTimeBucket, rec.TimeBucket())
			assert.Equal(t, tt.wantDuration, rec.DurationBucket())
			assert.Equal(t, tt.input, rec.Input())
		})
	}
}

func TestTimeBucketBoundaries(t *testing.T) {
	want := map[int]TimeBucket{
		0: TimeBucketNight, 5: TimeBucketNight,
		6: TimeBucketMorning, 11: TimeBucketMorning,
		12: TimeBucketAfternoon, 17: TimeBucketAfternoon,
		18: TimeBucketEvening, 23: TimeBucketEvening,
	}
	for hour, bucket := range want {
		assert.Equal(t, bucket, TimeBucketOf(hour), "hour %d", hour)
	}
	assert.Equal(t, "深夜", TimeBucketNight.Label())
	assert.Equal(t, "夜", TimeBucketEvening.Label())
}

func TestClassifyDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    DurationBucket
	}{
		{14, DurationOther},
		{15, Duration15s},
		{16, DurationOther},
		{29, DurationOther},
		{30, Duration30s},
		{31, DurationOther},
		{60, Duration1m},
		{61, DurationOther},
		{169, DurationOther},
		{170, Duration3m},
		{180, Duration3m},
		{190, Duration3m},
		{191, DurationOther},
		{289, DurationOther},
		{290, Duration5m},
		{310, Duration5m},
		{311, DurationOther},
	}
	for _, tt := range tests {
		got := ClassifyDuration(time.Duration(tt.seconds) * time.Second)
		assert.Equal(t, tt.want, got, "%ds", tt.seconds)
	}
	assert.Equal(t, "15秒", Duration15s.Label())
	assert.Equal(t, "1分", Duration1m.Label())
	assert.Equal(t, "その他", DurationOther.Label())
}

func TestWeekdayOrdering(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, tokyo) // Monday
	for i, want := range Weekdays {
		day := start.AddDate(0, 0, i)
		assert.Equal(t, want, WeekdayOf(day))
		assert.Equal(t, day.Weekday().String(), want.String())
	}
	assert.Equal(t, "Unknown", Weekday(9).String())
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection(" high ")
	require.NoError(t, err)
	assert.Equal(t, DirectionHigh, d)

	d, err = ParseDirection("LOW")
	require.NoError(t, err)
	assert.Equal(t, DirectionLow, d)

	_, err = ParseDirection("UP")
	assert.Error(t, err)
}

func TestTradeRecordJSON(t *testing.T) {
	rec, err := NewTradeRecord(TradeInput{TradeID: "42", Instrument: "GBPJPY", Direction: DirectionLow,
		OpenedAt: at(13, 0, 0), ClosedAt: at(13, 5, 0), Stake: 1000, Payout: 1850})
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "42", got["trade_id"])
	assert.Equal(t, float64(850), got["profit"])
	assert.Equal(t, "WIN", got["outcome"])
	assert.Equal(t, "Monday", got["weekday"])
	assert.Equal(t, "AFTERNOON", got["time_bucket"])
	assert.Equal(t, "5m", got["duration_bucket"])
	assert.Equal(t, float64(300), got["duration_seconds"])
}
