package fitness

import (
	"time"
)

// DateLayout is the calendar day format of the date fields.
const DateLayout = "2006-01-02"

const (
	TypeWeightlifting = "Weightlifting"
	TypeRunning       = "Running"
	TypeCycling       = "Cycling"
	TypeYoga          = "Yoga"
	TypeOther         = "Other"
)

const (
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
)

// PlanCompletionNote marks training records created by completing a plan item.
const PlanCompletionNote = "Completed from Training Plan"

// document field names
const (
	FieldType            = "type"
	FieldActivity        = "activity"
	FieldDate            = "date"
	FieldSets            = "sets"
	FieldReps            = "reps"
	FieldWeightKg        = "weightKg"
	FieldNotes           = "notes"
	FieldCompleted       = "completed"
	FieldRelatedRecordID = "relatedRecordId"
	FieldShoulderCm      = "shoulderCm"
	FieldChestCm         = "chestCm"
	FieldArmCm           = "armCm"
	FieldWaistCm         = "waistCm"
	FieldTitle           = "title"
	FieldDueDate         = "dueDate"
	FieldRepeat          = "repeat"
	FieldReminder        = "reminder"
	FieldHeightCm        = "heightCm"
	FieldTheme           = "theme"
)

type TrainingRecord struct {
	ID              string    `json:"_id,omitempty"`
	Type            string    `json:"type,omitempty"`
	Activity        string    `json:"activity"`
	Date            string    `json:"date"`
	Sets            int       `json:"sets"`
	Reps            int       `json:"reps"`
	WeightKg        float64   `json:"weightKg"`
	DurationMinutes float64   `json:"durationMinutes,omitempty"`
	DistanceKm      float64   `json:"distanceKm,omitempty"`
	Notes           string    `json:"notes"`
	Completed       bool      `json:"completed"`
	RelatedRecordID string    `json:"relatedRecordId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Day returns the parsed date, zero when the date is not a valid calendar day.
func (r TrainingRecord) Day() time.Time {
	return parseDay(r.Date)
}

// FromPlan reports whether the record was created by completing a plan item.
func (r TrainingRecord) FromPlan() bool {
	return r.RelatedRecordID != "" || r.Notes == PlanCompletionNote
}

type MetricRecord struct {
	ID         string    `json:"_id,omitempty"`
	Date       string    `json:"date"`
	ShoulderCm float64   `json:"shoulderCm"`
	ChestCm    float64   `json:"chestCm"`
	ArmCm      float64   `json:"armCm"`
	WaistCm    float64   `json:"waistCm"`
	WeightKg   float64   `json:"weightKg"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (m MetricRecord) Day() time.Time {
	return parseDay(m.Date)
}

type TrainingPlanItem struct {
	ID              string     `json:"_id,omitempty"`
	Title           string     `json:"title"`
	Completed       bool       `json:"completed"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	Repeat          string     `json:"repeat,omitempty"`
	Reminder        *time.Time `json:"reminder,omitempty"`
	WeightKg        *float64   `json:"weightKg,omitempty"`
	Sets            *int       `json:"sets,omitempty"`
	Reps            *int       `json:"reps,omitempty"`
	RelatedRecordID string     `json:"relatedRecordId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Linked reports whether the item points to a training record created on completion.
func (p TrainingPlanItem) Linked() bool {
	return p.RelatedRecordID != ""
}

func parseDay(date string) time.Time {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}
	}
	return day
}

// DateOf formats t as a calendar day in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}
