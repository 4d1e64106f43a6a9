package cascade

import (
	"context"
	"fmt"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/fitness"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

const (
	OrphanKindPlanItem = "plan_item"
	OrphanKindRecord   = "training_record"
)

// OrphanReport lists the links left inconsistent by interrupted cascades.
type OrphanReport struct {
	// plan items pointing to a training record that does not exist
	DanglingPlanItems []fitness.TrainingPlanItem
	// records pointing back to a plan item that does not point to them
	UnlinkedRecords []fitness.TrainingRecord
	// records that only carry the completion note and no plan link; they
	// may have been typed by hand, so Repair leaves them alone
	NoteOnlyRecords []fitness.TrainingRecord
}

// Empty reports whether there is anything for Repair to do.
func (r OrphanReport) Empty() bool {
	return len(r.DanglingPlanItems) == 0 && len(r.UnlinkedRecords) == 0
}

func (m *Manager) FindOrphans(ctx context.Context) (_ OrphanReport, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cascade.findOrphans")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	planDocs, err := m.store.Find(ctx, docstore.CollectionTrainingPlan, docstore.Query{})
	if err != nil {
		return OrphanReport{}, err
	}
	recordDocs, err := m.store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	if err != nil {
		return OrphanReport{}, err
	}

	items := fitness.PlanItems(planDocs)
	records := fitness.TrainingRecords(recordDocs)

	recordIDs := make(map[string]bool, len(records))
	for _, r := range records {
		recordIDs[r.ID] = true
	}
	linked := make(map[string]bool, len(items))

	var report OrphanReport
	for _, item := range items {
		if !item.Linked() {
			continue
		}
		linked[item.RelatedRecordID] = true
		if !recordIDs[item.RelatedRecordID] {
			report.DanglingPlanItems = append(report.DanglingPlanItems, item)
		}
	}
	for _, r := range records {
		if !r.FromPlan() || linked[r.ID] {
			continue
		}
		if r.RelatedRecordID == "" {
			report.NoteOnlyRecords = append(report.NoteOnlyRecords, r)
			continue
		}
		report.UnlinkedRecords = append(report.UnlinkedRecords, r)
	}

	if m.metricsManager != nil {
		m.metricsManager.GaugeOrphans.WithLabelValues(OrphanKindPlanItem).Set(float64(len(report.DanglingPlanItems)))
		m.metricsManager.GaugeOrphans.WithLabelValues(OrphanKindRecord).Set(float64(len(report.UnlinkedRecords)))
	}
	if !report.Empty() {
		log.Warnf("cascade: %d dangling plan items, %d unlinked records",
			len(report.DanglingPlanItems), len(report.UnlinkedRecords))
	}
	for _, r := range report.NoteOnlyRecords {
		log.Infof("cascade: record [%s] (%s, %s) has the plan completion note but no plan link, not touching it",
			r.ID, r.Activity, r.Date)
	}

	return report, nil
}

// Repair resolves the orphans in the report: dangling plan items go back to
// not completed and unlinked records are removed. Note-only records are
// never removed. It only runs when asked.
func (m *Manager) Repair(ctx context.Context, report OrphanReport) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cascade.repair")
	defer func() {
		m.observe(OpRepair, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()

	for _, item := range report.DanglingPlanItems {
		if _, err := m.store.Update(ctx, docstore.CollectionTrainingPlan,
			docstore.Query{docstore.FieldID: item.ID, fitness.FieldRelatedRecordID: item.RelatedRecordID},
			docstore.Document{
				fitness.FieldCompleted:       false,
				fitness.FieldRelatedRecordID: nil,
			},
			docstore.UpdateOptions{Mode: docstore.ModePatch},
		); err != nil {
			return fmt.Errorf("repair plan item %s: %w", item.ID, err)
		}
	}
	for _, r := range report.UnlinkedRecords {
		if r.RelatedRecordID == "" {
			continue
		}
		if err := m.removeRecord(ctx, r.ID); err != nil {
			return fmt.Errorf("repair record %s: %w", r.ID, err)
		}
	}

	if len(report.DanglingPlanItems) > 0 {
		m.refresh(docstore.CollectionTrainingPlan)
	}
	return nil
}
