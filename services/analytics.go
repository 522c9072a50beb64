package services

import "github.com/aitector/aitector/models"

// EmptyAnalytics is the shape returned for a key with no usage.
func EmptyAnalytics() models.Analytics {
	return models.Analytics{}
}

// AggregateUsage folds usage rows into per-action counts and means in a
// single pass. Rows with any other action are ignored.
func AggregateUsage(rows []models.APIUsage) models.Analytics {
	var (
		out                  models.Analytics
		detLatency, detRisk  float64
		reLatency, reIterSum float64
	)

	for _, row := range rows {
		switch row.Action {
		case models.ActionDetect:
			out.Detect.Total++
			detLatency += row.ElapsedTime
			if row.Risk != nil {
				detRisk += *row.Risk
			}
			if row.Flagged != nil && *row.Flagged {
				out.Detect.Flagged++
			}
		case models.ActionRewrite:
			out.Replace.Total++
			reLatency += row.ElapsedTime
			if row.Iterations != nil {
				reIterSum += *row.Iterations
			}
			if row.Success != nil && *row.Success {
				out.Replace.Success++
			}
		}
	}

	if n := float64(out.Detect.Total); n > 0 {
		out.Detect.Latency = detLatency / n
		out.Detect.Risk = detRisk / n
	}
	if n := float64(out.Replace.Total); n > 0 {
		out.Replace.Latency = reLatency / n
		out.Replace.Iterations = reIterSum / n
	}
	return out
}
