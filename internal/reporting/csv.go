package reporting

import (
	"fmt"
	"strings"

	"pnf-signal-lab/internal/domain"
)

// RenderCSV renders pattern metrics as CSV string.
func RenderCSV(metrics []PatternMetricRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("kind,direction,total_alerts,total_instruments,scored,win_rate,")
	sb.WriteString("return_mean,return_median,return_p10,return_p90,mfe_mean,mae_mean,")
	sb.WriteString("hit_target_1_rate,stop_loss_rate,max_consecutive_losses\n")

	// Rows
	for _, m := range metrics {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
			m.Kind,
			m.Direction,
			m.TotalAlerts,
			m.TotalInstruments,
			m.Scored,
			m.WinRate,
			m.ReturnMean,
			m.ReturnMedian,
			m.ReturnP10,
			m.ReturnP90,
			m.MFEMean,
			m.MAEMean,
			m.HitTarget1Rate,
			m.StopLossRate,
			m.MaxConsecutiveLosses,
		))
	}

	return sb.String()
}

// RenderResultsCSV renders one row per backtest result, one return column per horizon
// of the first result. Missing samples are empty cells.
func RenderResultsCSV(results []*domain.BacktestResult) string {
	var sb strings.Builder

	var labels []string
	if len(results) > 0 {
		for _, h := range results[0].Horizons {
			labels = append(labels, h.Label)
		}
	}

	sb.WriteString("id,instrument_id,kind,direction,trigger_time,trigger_price")
	for _, l := range labels {
		sb.WriteString(",return_" + l)
	}
	sb.WriteString(",mfe,mae,hit_target_1pct,hit_target_2pct,hit_stop_loss,was_successful\n")

	for _, r := range results {
		kind, dir := "", ""
		if r.Alert != nil {
			kind, dir = string(r.Alert.Kind), string(r.Alert.Direction)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%d,%.6f",
			r.ID, csvField(r.InstrumentID), kind, dir, r.TriggerTime, r.TriggerPrice))
		for _, l := range labels {
			sb.WriteString("," + optFloat(r.ReturnAt(l)))
		}
		sb.WriteString(fmt.Sprintf(",%s,%s,%t,%t,%t,%s\n",
			optFloat(r.MaxFavorableExcursionPct),
			optFloat(r.MaxAdverseExcursionPct),
			r.HitTarget1Pct,
			r.HitTarget2Pct,
			r.HitStopLoss,
			optBool(r.WasSuccessful),
		))
	}

	return sb.String()
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *v)
}

func optBool(v *bool) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%t", *v)
}

// csvField quotes values containing separators.
func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
