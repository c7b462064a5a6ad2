package dataprocessing

import (
	"fmt"
	"sort"

	"tradelens/pkg/contracts/domain"
)

// category is one row slot of a grouping table.
type category struct {
	key    string
	labels []string
}

// Group aggregates records by one key. Every category of the key's fixed
// ordering gets a row, zero-filled when no record falls into it. The result
// does not depend on the order of records.
func Group(records []domain.TradeRecord, by domain.GroupBy) (domain.GroupTable, error) {
	keyOf, categories, err := grouping(records, by)
	if err != nil {
		return domain.GroupTable{}, err
	}

	rows := make([]domain.GroupRow, len(categories))
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		rows[i] = domain.GroupRow{Key: c.key, Labels: c.labels}
		index[c.key] = i
	}

	for _, rec := range records {
		row := &rows[index[keyOf(rec)]]
		row.Count++
		row.TotalProfit += rec.Profit()
		if rec.IsWin() {
			row.Wins++
		}
	}
	for i := range rows {
		if rows[i].Count > 0 {
			rows[i].WinRate = float64(rows[i].Wins) / float64(rows[i].Count)
		}
	}
	return domain.GroupTable{By: by, Rows: rows}, nil
}

// GroupAll builds one table per key, in the order given.
func GroupAll(records []domain.TradeRecord, keys []domain.GroupBy) ([]domain.GroupTable, error) {
	tables := make([]domain.GroupTable, 0, len(keys))
	for _, by := range keys {
		t, err := Group(records, by)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func grouping(records []domain.TradeRecord, by domain.GroupBy) (func(domain.TradeRecord) string, []category, error) {
	switch by {
	case domain.GroupByInstrument:
		var cats []category
		for _, inst := range instruments(records) {
			cats = append(cats, category{key: inst, labels: []string{inst}})
		}
		return func(r domain.TradeRecord) string { return r.Instrument() }, cats, nil

	case domain.GroupByDirection:
		cats := make([]category, 0, len(domain.Directions))
		for _, d := range domain.Directions {
			cats = append(cats, category{key: string(d), labels: []string{string(d)}})
		}
		return func(r domain.TradeRecord) string { return string(r.Direction()) }, cats, nil

	case domain.GroupByWeekday:
		cats := make([]category, 0, len(domain.Weekdays))
		for _, d := range domain.Weekdays {
			cats = append(cats, category{key: d.String(), labels: []string{d.String()}})
		}
		return func(r domain.TradeRecord) string { return r.Weekday().String() }, cats, nil

	case domain.GroupByTimeBucket:
		cats := make([]category, 0, len(domain.TimeBuckets))
		for _, b := range domain.TimeBuckets {
			cats = append(cats, category{key: string(b), labels: []string{b.Label()}})
		}
		return func(r domain.TradeRecord) string { return string(r.TimeBucket()) }, cats, nil

	case domain.GroupByDurationBucket:
		cats := make([]category, 0, len(domain.DurationBuckets))
		for _, b := range domain.DurationBuckets {
			cats = append(cats, category{key: string(b), labels: []string{b.Label()}})
		}
		return func(r domain.TradeRecord) string { return string(r.DurationBucket()) }, cats, nil

	case domain.GroupByHour:
		cats := make([]category, 0, 24)
		for h := 0; h < 24; h++ {
			k := hourKey(h)
			cats = append(cats, category{key: k, labels: []string{k}})
		}
		return func(r domain.TradeRecord) string { return hourKey(r.OpenedAt().Hour()) }, cats, nil

	case domain.GroupByInstrumentDirection:
		var cats []category
		for _, inst := range instruments(records) {
			for _, d := range domain.Directions {
				cats = append(cats, category{key: inst + "/" + string(d), labels: []string{inst, string(d)}})
			}
		}
		return func(r domain.TradeRecord) string { return r.Instrument() + "/" + string(r.Direction()) }, cats, nil
	}
	return nil, nil, fmt.Errorf("unknown grouping key %q", by)
}

// instruments returns the distinct instruments of records in ascending order.
func instruments(records []domain.TradeRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Instrument()] {
			seen[r.Instrument()] = true
			out = append(out, r.Instrument())
		}
	}
	sort.Strings(out)
	return out
}

func hourKey(h int) string {
	return fmt.Sprintf("%02d", h)
}
