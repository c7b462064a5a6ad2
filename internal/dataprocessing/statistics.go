package dataprocessing

import (
	"tradelens/pkg/contracts/domain"
)

// Summarize computes the summary statistics of records, which must be in
// ascending opening-time order (as returned by Normalize). Streaks, the
// equity curve and drawdown are computed in a single forward pass.
//
// An empty sequence yields a zero trade count with every optional unset.
func Summarize(records []domain.TradeRecord) domain.SummaryStatistics {
	stats := domain.SummaryStatistics{
		TotalTrades: len(records),
		RiskReward:  domain.RiskReward{Status: domain.RiskRewardUndefined},
		EquityCurve: []domain.EquityPoint{},
	}
	if len(records) == 0 {
		return stats
	}

	var (
		winSum, lossSum     int64
		winCount, lossCount int
		curWin, curLoss     int
		maxWin, maxLoss     int
	)

	stats.EquityCurve = make([]domain.EquityPoint, 0, len(records))
	var cumulative, peak, maxDrawdown int64

	for i, rec := range records {
		profit := rec.Profit()
		stats.TotalProfit += profit

		switch {
		case profit > 0:
			winSum += profit
			winCount++
		case profit < 0:
			lossSum += -profit
			lossCount++
		}

		if rec.IsWin() {
			stats.Wins++
			curWin++
			curLoss = 0
			if curWin > maxWin {
				maxWin = curWin
			}
		} else {
			stats.Losses++
			curLoss++
			curWin = 0
			if curLoss > maxLoss {
				maxLoss = curLoss
			}
		}

		cumulative += profit
		if i == 0 || cumulative > peak {
			peak = cumulative
		}
		drawdown := peak - cumulative
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
		stats.EquityCurve = append(stats.EquityCurve, domain.EquityPoint{
			TradeID:    rec.TradeID(),
			OpenedAt:   rec.OpenedAt(),
			Profit:     profit,
			Cumulative: cumulative,
			Peak:       peak,
			Drawdown:   drawdown,
		})
	}

	stats.WinRate = domain.SomeFloat(float64(stats.Wins) / float64(stats.TotalTrades))
	if winCount > 0 {
		stats.AverageWin = domain.SomeFloat(float64(winSum) / float64(winCount))
	}
	if lossCount > 0 {
		stats.AverageLoss = domain.SomeFloat(float64(lossSum) / float64(lossCount))
	}
	stats.RiskReward = riskReward(stats.AverageWin, stats.AverageLoss)
	stats.MaxWinStreak = domain.SomeInt(int64(maxWin))
	stats.MaxLossStreak = domain.SomeInt(int64(maxLoss))
	stats.MaxDrawdown = domain.SomeInt(maxDrawdown)
	return stats
}

// EquityCurve returns only the cumulative profit curve of records.
func EquityCurve(records []domain.TradeRecord) []domain.EquityPoint {
	return Summarize(records).EquityCurve
}

// riskReward divides the averages. The value is 0 whenever the ratio does
// not exist; Status says why.
func riskReward(avgWin, avgLoss domain.OptionalFloat) domain.RiskReward {
	win, hasWin := avgWin.Get()
	if !hasWin {
		return domain.RiskReward{Status: domain.RiskRewardUndefined}
	}
	loss, hasLoss := avgLoss.Get()
	if !hasLoss || loss == 0 {
		return domain.RiskReward{Status: domain.RiskRewardNoLosses}
	}
	return domain.RiskReward{Value: win / loss, Status: domain.RiskRewardDefined}
}
