package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Direction is the side of a binary option: the trader bets the rate closes
// above (HIGH) or below (LOW) the strike.
type Direction string

const (
	DirectionHigh Direction = "HIGH"
	DirectionLow  Direction = "LOW"
)

// Directions lists every direction in display order.
var Directions = []Direction{DirectionHigh, DirectionLow}

// ParseDirection accepts HIGH/LOW in any case with surrounding whitespace.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(DirectionHigh):
		return DirectionHigh, nil
	case string(DirectionLow):
		return DirectionLow, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Outcome classifies a settled trade by the sign of its profit.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLose Outcome = "LOSE"
)

// Numeric returns 1 for WIN and 0 for LOSE.
func (o Outcome) Numeric() int {
	if o == OutcomeWin {
		return 1
	}
	return 0
}

// Weekday is a day of the week ordered Monday (0) through Sunday (6).
// time.Weekday starts on Sunday, which breaks the ordering used by tables.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Weekdays lists Monday..Sunday.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WeekdayOf returns the Monday-first weekday of t in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "Unknown"
	}
	return time.Weekday((int(d) + 1) % 7).String()
}

// MarshalJSON encodes the weekday by name.
func (d Weekday) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// TimeBucket partitions the day into four six-hour slots. Intervals are
// left-closed and right-open.
type TimeBucket string

const (
	TimeBucketNight     TimeBucket = "NIGHT"     // [0, 6)
	TimeBucketMorning   TimeBucket = "MORNING"   // [6, 12)
	TimeBucketAfternoon TimeBucket = "AFTERNOON" // [12, 18)
	TimeBucketEvening   TimeBucket = "EVENING"   // [18, 24)
)

// TimeBuckets lists NIGHT..EVENING.
var TimeBuckets = []TimeBucket{TimeBucketNight, TimeBucketMorning, TimeBucketAfternoon, TimeBucketEvening}

// TimeBucketOf maps an hour of the day to its bucket.
func TimeBucketOf(hour int) TimeBucket {
	switch {
	case hour < 6:
		return TimeBucketNight
	case hour < 12:
		return TimeBucketMorning
	case hour < 18:
		return TimeBucketAfternoon
	default:
		return TimeBucketEvening
	}
}

// Label returns the ledger's Japanese name for the bucket.
func (b TimeBucket) Label() string {
	switch b {
	case TimeBucketNight:
		return "深夜"
	case TimeBucketMorning:
		return "午前"
	case TimeBucketAfternoon:
		return "午後"
	case TimeBucketEvening:
		return "夜"
	}
	return string(b)
}

// DurationBucket names a contract length.
type DurationBucket string

const (
	Duration15s   DurationBucket = "15s"
	Duration30s   DurationBucket = "30s"
	Duration1m    DurationBucket = "1m"
	Duration3m    DurationBucket = "3m"
	Duration5m    DurationBucket = "5m"
	DurationOther DurationBucket = "OTHER"
)

// DurationBuckets lists the buckets shortest first, OTHER last.
var DurationBuckets = []DurationBucket{Duration15s, Duration30s, Duration1m, Duration3m, Duration5m, DurationOther}

// durationTolerance is the inclusive skew window for long contracts.
const durationTolerance = 10 * time.Second

// Short contracts are timed exactly by the broker; long ones drift by a few
// seconds, so they match within durationTolerance.
var (
	exactDurations = []struct {
		d      time.Duration
		bucket DurationBucket
	}{
		{15 * time.Second, Duration15s},
		{30 * time.Second, Duration30s},
		{60 * time.Second, Duration1m},
	}
	windowedDurations = []struct {
		d      time.Duration
		bucket DurationBucket
	}{
		{180 * time.Second, Duration3m},
		{300 * time.Second, Duration5m},
	}
)

// ClassifyDuration maps the holding time of a trade to its bucket.
func ClassifyDuration(d time.Duration) DurationBucket {
	for _, e := range exactDurations {
		if d == e.d {
			return e.bucket
		}
	}
	for _, w := range windowedDurations {
		if d >= w.d-durationTolerance && d <= w.d+durationTolerance {
			return w.bucket
		}
	}
	return DurationOther
}

// Label returns the ledger's Japanese name for the bucket.
func (b DurationBucket) Label() string {
	switch b {
	case Duration15s:
		return "15秒"
	case Duration30s:
		return "30秒"
	case Duration1m:
		return "1分"
	case Duration3m:
		return "3分"
	case Duration5m:
		return "5分"
	}
	return "その他"
}

// Construction errors for TradeRecord.
var (
	ErrClosedBeforeOpened = errors.New("closing time is before opening time")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrInvalidDirection   = errors.New("direction must be HIGH or LOW")
)

// TradeRecord is one settled binary-option trade in canonical form.
//
// Fields are unexported: a record is built once by NewTradeRecord, which
// derives profit, outcome, weekday, time bucket and duration bucket in the
// same step, and is never modified afterwards.
type TradeRecord struct {
	tradeID    string
	openedAt   time.Time
	closedAt   time.Time
	instrument string
	direction  Direction
	stake      int64
	payout     int64

	profit         int64
	outcome        Outcome
	weekday        Weekday
	timeBucket     TimeBucket
	durationBucket DurationBucket
}

// TradeInput carries the primary fields of a trade.
type TradeInput struct {
	TradeID    string
	OpenedAt   time.Time
	ClosedAt   time.Time
	Instrument string
	Direction  Direction
	Stake      int64
	Payout     int64
}

// NewTradeRecord validates in and derives every dependent field.
// Timestamps are expected in the business timezone already; weekday and
// time bucket are read from OpenedAt's wall clock.
func NewTradeRecord(in TradeInput) (TradeRecord, error) {
	if in.ClosedAt.Before(in.OpenedAt) {
		return TradeRecord{}, fmt.Errorf("%w: opened %s, closed %s",
			ErrClosedBeforeOpened, in.OpenedAt.Format(time.RFC3339), in.ClosedAt.Format(time.RFC3339))
	}
	if in.Stake < 0 || in.Payout < 0 {
		return TradeRecord{}, fmt.Errorf("%w: stake %d, payout %d", ErrNegativeAmount, in.Stake, in.Payout)
	}
	if in.Direction != DirectionHigh && in.Direction != DirectionLow {
		return TradeRecord{}, fmt.Errorf("%w: got %q", ErrInvalidDirection, in.Direction)
	}

	profit := in.Payout - in.Stake
	outcome := OutcomeLose
	if profit > 0 {
		outcome = OutcomeWin
	}

	return TradeRecord{
		tradeID:        in.TradeID,
		openedAt:       in.OpenedAt,
		closedAt:       in.ClosedAt,
		instrument:     in.Instrument,
		direction:      in.Direction,
		stake:          in.Stake,
		payout:         in.Payout,
		profit:         profit,
		outcome:        outcome,
		weekday:        WeekdayOf(in.OpenedAt),
		timeBucket:     TimeBucketOf(in.OpenedAt.Hour()),
		durationBucket: ClassifyDuration(in.ClosedAt.Sub(in.OpenedAt)),
	}, nil
}

func (r TradeRecord) TradeID() string { return r.tradeID }
func (r TradeRecord) OpenedAt() time.Time { return r.openedAt }
func (r TradeRecord) ClosedAt() time.Time { return r.closedAt }
func (r TradeRecord) Instrument() string { return r.instrument }
func (r TradeRecord) Direction() Direction { return r.direction }
func (r TradeRecord) Stake() int64 { return r.stake }
func (r TradeRecord) Payout() int64 { return r.payout }
func (r TradeRecord) Profit() int64 { return r.profit }
func (r TradeRecord) Outcome() Outcome { return r.outcome }
func (r TradeRecord) Weekday() Weekday { return r.weekday }
func (r TradeRecord) TimeBucket() TimeBucket { return r.timeBucket }
func (r TradeRecord) DurationBucket() DurationBucket { return r.durationBucket }
func (r TradeRecord) Duration() time.Duration { return r.closedAt.Sub(r.openedAt) }
func (r TradeRecord) IsWin() bool { return r.outcome == OutcomeWin }

// Input returns the primary fields the record was built from.
func (r TradeRecord) Input() TradeInput {
	return TradeInput{
		TradeID:    r.tradeID,
		OpenedAt:   r.openedAt,
		ClosedAt:   r.closedAt,
		Instrument: r.instrument,
		Direction:  r.direction,
		Stake:      r.stake,
		Payout:     r.payout,
	}
}

type tradeRecordJSON struct {
	TradeID         string         `json:"trade_id"`
	OpenedAt        time.Time      `json:"opened_at"`
	ClosedAt        time.Time      `json:"closed_at"`
	Instrument      string         `json:"instrument"`
	Direction       Direction      `json:"direction"`
	Stake           int64          `json:"stake"`
	Payout          int64          `json:"payout"`
	Profit          int64          `json:"profit"`
	Outcome         Outcome        `json:"outcome"`
	Weekday         Weekday        `json:"weekday"`
	TimeBucket      TimeBucket     `json:"time_bucket"`
	DurationBucket  DurationBucket `json:"duration_bucket"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// MarshalJSON exposes every field, derived ones included.
func (r TradeRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(tradeRecordJSON{
		TradeID:         r.tradeID,
		OpenedAt:        r.openedAt,
		ClosedAt:        r.closedAt,
		Instrument:      r.instrument,
		Direction:       r.direction,
		Stake:           r.stake,
		Payout:          r.payout,
		Profit:          r.profit,
		Outcome:         r.outcome,
		Weekday:         r.weekday,
		TimeBucket:      r.timeBucket,
		DurationBucket:  r.durationBucket,
		DurationSeconds: r.Duration().Seconds(),
	})
}
