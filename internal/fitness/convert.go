package fitness

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/2beens/fittrack/internal/docstore"

	log "github.com/sirupsen/logrus"
)

var timeFields = map[string]bool{
	docstore.FieldCreatedAt: true,
	docstore.FieldUpdatedAt: true,
	FieldDueDate:            true,
	FieldReminder:           true,
}

var intFields = map[string]bool{
	FieldSets: true,
	FieldReps: true,
}

var floatFields = map[string]bool{
	FieldWeightKg:     true,
	FieldShoulderCm:   true,
	FieldChestCm:      true,
	FieldArmCm:        true,
	FieldWaistCm:      true,
	"durationMinutes": true,
	"distanceKm":      true,
}

// decode fills out from doc. Legacy values are tolerated: numbers stored as
// strings are parsed, timestamps may be RFC3339, a calendar day or unix
// milliseconds, and values that cannot be read are left at their zero value.
func decode(doc docstore.Document, out any) error {
	prepared := make(map[string]any, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		switch {
		case timeFields[k]:
			if t, ok := toTime(v); ok {
				prepared[k] = t
			}
		case intFields[k]:
			if f, ok := toNumber(v); ok {
				prepared[k] = int(math.Round(f))
			}
		case floatFields[k]:
			if f, ok := toNumber(v); ok {
				prepared[k] = f
			}
		default:
			prepared[k] = v
		}
	}

	raw, err := json.Marshal(prepared)
	if err != nil {
		return fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
	}
	return nil
}

// encode turns a record into a document; zero timestamps are left out.
func encode(record any) (docstore.Document, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
	}

	for field := range timeFields {
		value, ok := doc[field].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil || t.IsZero() {
			delete(doc, field)
			continue
		}
		doc[field] = docstore.FormatTime(t)
	}
	return doc, nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		for _, layout := range []string{time.RFC3339Nano, DateLayout} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		if ms, ok := toNumber(v); ok && ms > 0 {
			return time.UnixMilli(int64(ms)).UTC(), true
		}
		return time.Time{}, false
	}
}

func TrainingRecordFromDocument(doc docstore.Document) (TrainingRecord, error) {
	var r TrainingRecord
	if err := decode(doc, &r); err != nil {
		return TrainingRecord{}, fmt.Errorf("training record %s: %w", doc.ID(), err)
	}
	return r, nil
}

func (r TrainingRecord) Document() (docstore.Document, error) {
	return encode(r)
}

func MetricRecordFromDocument(doc docstore.Document) (MetricRecord, error) {
	var m MetricRecord
	if err := decode(doc, &m); err != nil {
		return MetricRecord{}, fmt.Errorf("metric record %s: %w", doc.ID(), err)
	}
	return m, nil
}

func (m MetricRecord) Document() (docstore.Document, error) {
	return encode(m)
}

func PlanItemFromDocument(doc docstore.Document) (TrainingPlanItem, error) {
	var p TrainingPlanItem
	if err := decode(doc, &p); err != nil {
		return TrainingPlanItem{}, fmt.Errorf("plan item %s: %w", doc.ID(), err)
	}
	return p, nil
}

func (p TrainingPlanItem) Document() (docstore.Document, error) {
	return encode(p)
}

// TrainingRecords converts docs, skipping (and logging) the unreadable ones.
func TrainingRecords(docs []docstore.Document) []TrainingRecord {
	out := make([]TrainingRecord, 0, len(docs))
	for _, doc := range docs {
		r, err := TrainingRecordFromDocument(doc)
		if err != nil {
			log.Warnf("skipping %s", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func MetricRecords(docs []docstore.Document) []MetricRecord {
	out := make([]MetricRecord, 0, len(docs))
	for _, doc := range docs {
		m, err := MetricRecordFromDocument(doc)
		if err != nil {
			log.Warnf("skipping %s", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

func PlanItems(docs []docstore.Document) []TrainingPlanItem {
	out := make([]TrainingPlanItem, 0, len(docs))
	for _, doc := range docs {
		p, err := PlanItemFromDocument(doc)
		if err != nil {
			log.Warnf("skipping %s", err)
			continue
		}
		out = append(out, p)
	}
	return out
}
