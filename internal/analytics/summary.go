package analytics

import (
	"github.com/2beens/fittrack/internal/fitness"
)

// Summary holds the dashboard figures.
type Summary struct {
	WeightliftingSessions int                   `json:"weightliftingSessions"`
	TotalSets             int                   `json:"totalSets"`
	LatestMetrics         *fitness.MetricRecord `json:"latestMetrics,omitempty"`
	BMI                   *float64              `json:"bmi,omitempty"`
	BMICategory           Category              `json:"bmiCategory"`
	ShoulderWaistRatio    *float64              `json:"shoulderWaistRatio,omitempty"`
	RatioCategory         Category              `json:"ratioCategory"`
	TopLifts              []ActivityMax         `json:"topLifts"`
	PendingPlanItems      int                   `json:"pendingPlanItems"`
}

// Summarize expects metrics newest first, the order the fetch controller keeps.
func Summarize(
	records []fitness.TrainingRecord,
	metrics []fitness.MetricRecord,
	planItems []fitness.TrainingPlanItem,
	heightCm float64,
) Summary {
	summary := Summary{
		BMICategory:   CategoryUnknown,
		RatioCategory: CategoryUnknown,
		TopLifts:      MaxWeightByActivity(records),
	}

	for _, r := range records {
		if r.Type == fitness.TypeWeightlifting {
			summary.WeightliftingSessions++
		}
		summary.TotalSets += r.Sets
	}
	for _, item := range planItems {
		if !item.Completed {
			summary.PendingPlanItems++
		}
	}

	if len(metrics) == 0 {
		return summary
	}
	latest := metrics[0]
	summary.LatestMetrics = &latest

	bmi, ok := BMI(latest.WeightKg, heightCm)
	if ok {
		summary.BMI = &bmi
	}
	summary.BMICategory = ClassifyBMI(bmi, ok)

	ratio, ok := ShoulderWaistRatio(latest.ShoulderCm, latest.WaistCm)
	if ok {
		summary.ShoulderWaistRatio = &ratio
	}
	summary.RatioCategory = ClassifyShoulderWaistRatio(ratio, ok)

	return summary
}
