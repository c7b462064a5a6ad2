package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NotAvailable is the text rendering of an undefined statistic.
const NotAvailable = "N/A"

// OptionalFloat is a float statistic that may be undefined (for example the
// win rate of zero trades). Undefined values serialize to JSON null and render
// as N/A; they are never coerced to 0.
type OptionalFloat struct {
	value float64
	valid bool
}

// SomeFloat returns a defined OptionalFloat.
func SomeFloat(v float64) OptionalFloat {
	return OptionalFloat{value: v, valid: true}
}

// Get returns the value and whether it is defined.
func (o OptionalFloat) Get() (float64, bool) { return o.value, o.valid }

// Valid reports whether the value is defined.
func (o OptionalFloat) Valid() bool { return o.valid }

// String formats the value with four decimals, or N/A.
func (o OptionalFloat) String() string {
	if !o.valid {
		return NotAvailable
	}
	return strconv.FormatFloat(o.value, 'f', 4, 64)
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptionalFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = SomeFloat(v)
	return nil
}

// OptionalInt is the integer counterpart of OptionalFloat.
type OptionalInt struct {
	value int64
	valid bool
}

// SomeInt returns a defined OptionalInt.
func SomeInt(v int64) OptionalInt {
	return OptionalInt{value: v, valid: true}
}

func (o OptionalInt) Get() (int64, bool) { return o.value, o.valid }

func (o OptionalInt) Valid() bool { return o.valid }

func (o OptionalInt) String() string {
	if !o.valid {
		return NotAvailable
	}
	return strconv.FormatInt(o.value, 10)
}

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptionalInt{}
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = SomeInt(v)
	return nil
}

// RiskRewardStatus tells apart the cases in which RiskReward.Value is 0.
type RiskRewardStatus string

const (
	// RiskRewardDefined means both averages exist and Value is their ratio.
	RiskRewardDefined RiskRewardStatus = "defined"
	// RiskRewardNoLosses means winning trades exist but no trade lost money.
	// Value is 0.
	RiskRewardNoLosses RiskRewardStatus = "no_losses"
	// RiskRewardUndefined means there is no winning trade (or no trade at
	// all) to build the ratio from. Value is 0.
	RiskRewardUndefined RiskRewardStatus = "undefined"
)

// RiskReward is averageWin / averageLoss together with the reason a zero
// value is zero.
type RiskReward struct {
	Value  float64          `json:"value"`
	Status RiskRewardStatus `json:"status"`
}

func (r RiskReward) String() string {
	if r.Status != RiskRewardDefined {
		return fmt.Sprintf("0 (%s)", r.Status)
	}
	return strconv.FormatFloat(r.Value, 'f', 2, 64)
}

// EquityPoint is one step of the cumulative profit curve.
type EquityPoint struct {
	TradeID    string    `json:"trade_id"`
	OpenedAt   time.Time `json:"opened_at"`
	Profit     int64     `json:"profit"`
	Cumulative int64     `json:"cumulative"`
	// Peak is the running maximum of Cumulative up to and including this point.
	Peak int64 `json:"peak"`
	// Drawdown is Peak - Cumulative, never negative.
	Drawdown int64 `json:"drawdown"`
}

// SummaryStatistics is the single result of the statistics pass over an
// ordered trade sequence. It is the authoritative shape handed to every
// presentation and export consumer.
//
// Field rules:
//   - WinRate counts WIN trades over all trades. Break-even trades (profit 0)
//     are LOSE outcomes and stay in the denominator.
//   - AverageWin is the mean of strictly positive profits.
//   - AverageLoss is the mean absolute value of strictly negative profits.
//     Break-even trades are in neither average.
//   - Optionals are unset when their input subset is empty. An empty
//     sequence leaves every optional unset.
//   - Streaks, equity and drawdown depend on ascending OpenedAt order.
type SummaryStatistics struct {
	TotalTrades int   `json:"total_trades"`
	Wins        int   `json:"wins"`
	Losses      int   `json:"losses"`
	TotalProfit int64 `json:"total_profit"`

	WinRate     OptionalFloat `json:"win_rate"`
	AverageWin  OptionalFloat `json:"average_win"`
	AverageLoss OptionalFloat `json:"average_loss"`
	RiskReward  RiskReward    `json:"risk_reward"`

	MaxWinStreak  OptionalInt `json:"max_win_streak"`
	MaxLossStreak OptionalInt `json:"max_loss_streak"`
	MaxDrawdown   OptionalInt `json:"max_drawdown"`

	EquityCurve []EquityPoint `json:"equity_curve"`
}

// IsEmpty reports whether the statistics were computed over no trades.
func (s SummaryStatistics) IsEmpty() bool {
	return s.TotalTrades == 0
}

// GroupBy is the closed set of grouping keys.
type GroupBy string

const (
	GroupByInstrument          GroupBy = "instrument"
	GroupByDirection           GroupBy = "direction"
	GroupByWeekday             GroupBy = "weekday"
	GroupByTimeBucket          GroupBy = "time_bucket"
	GroupByDurationBucket      GroupBy = "duration_bucket"
	GroupByHour                GroupBy = "hour"
	GroupByInstrumentDirection GroupBy = "instrument_direction"
)

// GroupKeys lists every grouping key in the order tables are presented.
var GroupKeys = []GroupBy{
	GroupByInstrument,
	GroupByDirection,
	GroupByWeekday,
	GroupByTimeBucket,
	GroupByDurationBucket,
	GroupByHour,
	GroupByInstrumentDirection,
}

// ParseGroupBy validates a grouping key name.
func ParseGroupBy(s string) (GroupBy, error) {
	for _, g := range GroupKeys {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown grouping key %q", s)
}

// GroupRow is the aggregate of one category. Key is stable and machine
// readable ("Monday", "EURUSD/HIGH", "09"); Labels carries the display parts,
// one per grouping dimension.
type GroupRow struct {
	Key         string   `json:"key"`
	Labels      []string `json:"labels"`
	Count       int      `json:"count"`
	Wins        int      `json:"wins"`
	WinRate     float64  `json:"win_rate"`
	TotalProfit int64    `json:"total_profit"`
}

// GroupTable is the complete result of grouping by one key.
type GroupTable struct {
	By   GroupBy    `json:"by"`
	Rows []GroupRow `json:"rows"`
}
