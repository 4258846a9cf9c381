package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: %s | Trigger: %s\n\n", r.RunID, r.Trigger))

	// Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Instruments | %d |\n", r.Summary.Instruments))
	sb.WriteString(fmt.Sprintf("| Processed | %d |\n", r.Summary.Processed))
	sb.WriteString(fmt.Sprintf("| Skipped (no candles) | %d |\n", r.Summary.Skipped))
	sb.WriteString(fmt.Sprintf("| Errored | %d |\n", r.Summary.Errored))
	sb.WriteString(fmt.Sprintf("| Results | %d |\n", r.Summary.TotalResults))
	sb.WriteString(fmt.Sprintf("| First Trigger (ms) | %d |\n", r.Summary.DateRangeStart))
	sb.WriteString(fmt.Sprintf("| Last Trigger (ms) | %d |\n", r.Summary.DateRangeEnd))
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	if len(r.DataQuality.RunErrors) == 0 && len(r.DataQuality.IntegrityErrors) == 0 {
		sb.WriteString("No errors recorded.\n\n")
	}
	if len(r.DataQuality.RunErrors) > 0 {
		sb.WriteString("### Instrument Errors\n\n")
		for _, err := range r.DataQuality.RunErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}
	if len(r.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("### Integrity Errors\n\n")
		for _, err := range r.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	// Pattern Metrics
	sb.WriteString("## Pattern Metrics\n\n")
	if len(r.PatternMetrics) > 0 {
		sb.WriteString("| Kind | Dir | Alerts | Instruments | Scored | WinRate | Mean | Median | P10 | P90 | MFE | MAE | Hit1% | Stop | MaxLoss |\n")
		sb.WriteString("|------|-----|--------|-------------|--------|---------|------|--------|-----|-----|-----|-----|-------|------|---------|\n")
		for _, m := range r.PatternMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d |\n",
				m.Kind, m.Direction, m.TotalAlerts, m.TotalInstruments, m.Scored,
				m.WinRate, m.ReturnMean, m.ReturnMedian, m.ReturnP10, m.ReturnP90,
				m.MFEMean, m.MAEMean, m.HitTarget1Rate, m.StopLossRate, m.MaxConsecutiveLosses))
		}
	} else {
		sb.WriteString("No pattern metrics available.\n")
	}
	sb.WriteString("\n")

	// Horizon Returns
	sb.WriteString("## Returns by Horizon\n\n")
	if len(r.HorizonReturns) > 0 {
		sb.WriteString("| Kind | Horizon | Samples | Coverage | Mean Return % |\n")
		sb.WriteString("|------|---------|---------|----------|---------------|\n")
		for _, h := range r.HorizonReturns {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %.4f |\n",
				h.Kind, h.Horizon, h.Samples, h.Coverage, h.MeanReturn))
		}
	} else {
		sb.WriteString("No horizon samples available.\n")
	}
	sb.WriteString("\n")

	// Direction Comparison
	sb.WriteString("## BUY vs SELL\n\n")
	if len(r.DirectionComparison) > 0 {
		sb.WriteString("| Direction | Alerts | Scored | WinRate | Mean |\n")
		sb.WriteString("|-----------|--------|--------|---------|------|\n")
		for _, d := range r.DirectionComparison {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f | %.4f |\n",
				d.Direction, d.TotalAlerts, d.Scored, d.WinRate, d.ReturnMean))
		}
	} else {
		sb.WriteString("No direction comparison available.\n")
	}
	sb.WriteString("\n")

	// Replay References
	sb.WriteString("## Replay References\n\n")
	if len(r.ReplayReferences) > 0 {
		sb.WriteString("| Result | Instrument | Kind | Trigger (ms) | Return % |\n")
		sb.WriteString("|--------|------------|------|--------------|----------|\n")
		for _, ref := range r.ReplayReferences {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %.4f |\n",
				shortID(ref.ResultID), ref.InstrumentID, ref.Kind, ref.TriggerTime, ref.Return))
		}
	} else {
		sb.WriteString("No replay references available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
