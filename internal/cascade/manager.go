// Package cascade keeps training plan items and the training records
// created by completing them in sync.
//
// A completed plan item is linked to its record through relatedRecordId.
// The steps of a cascade are plain sequential store calls: when a later
// step fails the earlier ones stay, and the inconsistency is reported by
// FindOrphans instead of being rolled back.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/fitness"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	OpAdd        = "add"
	OpComplete   = "complete"
	OpUncomplete = "uncomplete"
	OpDelete     = "delete"
	OpRepair     = "repair"
)

var ErrInvalidPlanItem = errors.New("invalid plan item")

// PartialError is returned when a cascade stopped after some of its writes
// went through. The store is left as it is.
type PartialError struct {
	Op         string
	PlanItemID string
	RecordID   string
	Err        error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("cascade %s of plan item %s stopped half way (record %s): %s", e.Op, e.PlanItemID, e.RecordID, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Refresher is told which collections a cascade wrote to.
type Refresher interface {
	Refresh(collections ...string)
}

type Manager struct {
	store          docstore.Store
	refresher      Refresher
	metricsManager *metrics.Manager
	now            func() time.Time
}

// NewManager accepts a nil refresher and a nil metrics manager.
func NewManager(store docstore.Store, refresher Refresher, metricsManager *metrics.Manager) *Manager {
	return &Manager{
		store:          store,
		refresher:      refresher,
		metricsManager: metricsManager,
		now:            time.Now,
	}
}

func (m *Manager) observe(op string, err error) {
	if m.metricsManager == nil {
		return
	}
	status := "ok"
	var partialErr *PartialError
	switch {
	case errors.As(err, &partialErr):
		status = "partial"
	case err != nil:
		status = "error"
	}
	m.metricsManager.CounterCascadeOps.With(prometheus.Labels{"op": op, "status": status}).Inc()
}

func (m *Manager) refresh(collections ...string) {
	if m.refresher != nil {
		m.refresher.Refresh(collections...)
	}
}

type NewPlanItem struct {
	Title    string
	DueDate  *time.Time
	Repeat   string
	Reminder *time.Time
	WeightKg *float64
	Sets     *int
	Reps     *int
}

func (p NewPlanItem) validate() error {
	if p.Title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidPlanItem)
	}
	switch p.Repeat {
	case "", fitness.RepeatDaily, fitness.RepeatWeekly, fitness.RepeatMonthly:
	default:
		return fmt.Errorf("%w: unknown repeat %q", ErrInvalidPlanItem, p.Repeat)
	}
	if p.WeightKg != nil && *p.WeightKg < 0 {
		return fmt.Errorf("%w: negative weight", ErrInvalidPlanItem)
	}
	if (p.Sets != nil && *p.Sets < 1) || (p.Reps != nil && *p.Reps < 1) {
		return fmt.Errorf("%w: sets and reps must be at least 1", ErrInvalidPlanItem)
	}
	return nil
}

func (m *Manager) AddPlanItem(ctx context.Context, newItem NewPlanItem) (_ fitness.TrainingPlanItem, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cascade.add")
	defer func() {
		m.observe(OpAdd, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := newItem.validate(); err != nil {
		return fitness.TrainingPlanItem{}, err
	}

	item := fitness.TrainingPlanItem{
		Title:     newItem.Title,
		Completed: false,
		DueDate:   newItem.DueDate,
		Repeat:    newItem.Repeat,
		Reminder:  newItem.Reminder,
		WeightKg:  newItem.WeightKg,
		Sets:      newItem.Sets,
		Reps:      newItem.Reps,
		CreatedAt: m.now(),
	}
	doc, err := item.Document()
	if err != nil {
		return fitness.TrainingPlanItem{}, err
	}

	inserted, err := m.store.Insert(ctx, docstore.CollectionTrainingPlan, doc)
	if err != nil {
		return fitness.TrainingPlanItem{}, err
	}
	m.refresh(docstore.CollectionTrainingPlan)

	return fitness.PlanItemFromDocument(inserted)
}

func (m *Manager) loadPlanItem(ctx context.Context, id string) (fitness.TrainingPlanItem, error) {
	docs, err := m.store.Find(ctx, docstore.CollectionTrainingPlan, docstore.Query{docstore.FieldID: id})
	if err != nil {
		return fitness.TrainingPlanItem{}, err
	}
	if len(docs) == 0 {
		return fitness.TrainingPlanItem{}, fmt.Errorf("plan item %s: %w", id, docstore.ErrNotFound)
	}
	return fitness.PlanItemFromDocument(docs[0])
}

// recordFor builds the training record a completion creates.
func (m *Manager) recordFor(item fitness.TrainingPlanItem) fitness.TrainingRecord {
	now := m.now()
	record := fitness.TrainingRecord{
		Type:            fitness.TypeWeightlifting,
		Activity:        item.Title,
		Date:            fitness.DateOf(now),
		Notes:           fitness.PlanCompletionNote,
		Completed:       true,
		RelatedRecordID: item.ID,
		CreatedAt:       now,
	}
	if item.Sets != nil {
		record.Sets = *item.Sets
	}
	if item.Reps != nil {
		record.Reps = *item.Reps
	}
	if item.WeightKg != nil {
		record.WeightKg = *item.WeightKg
	}
	return record
}

// CompletePlanItem creates the training record for the item and links it.
// Completing an already linked item changes nothing.
func (m *Manager) CompletePlanItem(ctx context.Context, id string) (_ fitness.TrainingPlanItem, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cascade.complete")
	defer func() {
		m.observe(OpComplete, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan_item", id))

	item, err := m.loadPlanItem(ctx, id)
	if err != nil {
		return fitness.TrainingPlanItem{}, err
	}
	if item.Linked() {
		log.Debugf("cascade: plan item %s already linked to %s", id, item.RelatedRecordID)
		return item, nil
	}

	recordDoc, err := m.recordFor(item).Document()
	if err != nil {
		return fitness.TrainingPlanItem{}, err
	}
	inserted, err := m.store.Insert(ctx, docstore.CollectionTraining, recordDoc)
	if err != nil {
		return fitness.TrainingPlanItem{}, err
	}
	m.refresh(docstore.CollectionTraining)

	recordID := inserted.ID()
	if _, err := m.store.Update(ctx, docstore.CollectionTrainingPlan,
		docstore.Query{docstore.FieldID: id},
		docstore.Document{
			fitness.FieldCompleted:       true,
			fitness.FieldRelatedRecordID: recordID,
		},
		docstore.UpdateOptions{Mode: docstore.ModePatch},
	); err != nil {
		log.Errorf("cascade: record %s created but plan item %s not linked: %s", recordID, id, err)
		return fitness.TrainingPlanItem{}, &PartialError{Op: OpComplete, PlanItemID: id, RecordID: recordID, Err: err}
	}
	m.refresh(docstore.CollectionTrainingPlan)

	item.Completed = true
	item.RelatedRecordID = recordID
	return item, nil
}

// removeRecord deletes a linked record; a record that is already gone is fine.
func (m *Manager) removeRecord(ctx context.Context, recordID string) error {
	removed, err := m.store.Remove(ctx, docstore.CollectionTraining,
		docstore.Query{docstore.FieldID: recordID},
		docstore.RemoveOptions{},
	)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	if removed == 0 {
		log.Debugf("cascade: linked record %s was already gone", recordID)
	}
	m.refresh(docstore.CollectionTraining)
	return nil
}

// UncompletePlanItem removes the linked record and clears the link.
func (m *Manager) UncompletePlanItem(ctx context.Context, id string) (_ fitness.TrainingPlanItem, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cascade.uncomplete")
	defer func() {
		m.observe(OpUncomplete, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan_item", id))

	item, err := m.loadPlanItem(ctx, id)
	if err != nil {
		return fitness.TrainingPlanItem{}, err
	}

	recordRemoved := false
	if item.Linked() {
		if err := m.removeRecord(ctx, item.RelatedRecordID); err != nil {
			return fitness.TrainingPlanItem{}, err
		}
		recordRemoved = true
	}

	if _, err := m.store.Update(ctx, docstore.CollectionTrainingPlan,
		docstore.Query{docstore.FieldID: id},
		docstore.Document{
			fitness.FieldCompleted:       false,
			fitness.FieldRelatedRecordID: nil,
		},
		docstore.UpdateOptions{Mode: docstore.ModePatch},
	); err != nil {
		if recordRemoved {
			return fitness.TrainingPlanItem{}, &PartialError{Op: OpUncomplete, PlanItemID: id, RecordID: item.RelatedRecordID, Err: err}
		}
		return fitness.TrainingPlanItem{}, err
	}
	m.refresh(docstore.CollectionTrainingPlan)

	item.Completed = false
	item.RelatedRecordID = ""
	return item, nil
}

// DeletePlanItem removes the linked record, if any, then the item itself.
// When the record cannot be removed the item is kept, so no record is
// left without its plan item.
func (m *Manager) DeletePlanItem(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "cascade.delete")
	defer func() {
		m.observe(OpDelete, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan_item", id))

	item, err := m.loadPlanItem(ctx, id)
	if err != nil {
		return err
	}

	if item.Linked() {
		if err := m.removeRecord(ctx, item.RelatedRecordID); err != nil {
			return err
		}
	}

	if _, err := m.store.Remove(ctx, docstore.CollectionTrainingPlan,
		docstore.Query{docstore.FieldID: id},
		docstore.RemoveOptions{},
	); err != nil {
		if item.Linked() {
			return &PartialError{Op: OpDelete, PlanItemID: id, RecordID: item.RelatedRecordID, Err: err}
		}
		return err
	}
	m.refresh(docstore.CollectionTrainingPlan)
	return nil
}
