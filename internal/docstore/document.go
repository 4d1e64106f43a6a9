package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.NewString()
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ParseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

// Stamp returns a copy of doc carrying an _id and a createdAt.
// Values already present are kept.
func Stamp(doc Document, now time.Time) Document {
	out := Clone(doc)
	if out == nil {
		out = Document{}
	}
	if id, ok := out[FieldID].(string); !ok || id == "" {
		out[FieldID] = NewID()
	}
	if out[FieldCreatedAt] == nil {
		out[FieldCreatedAt] = FormatTime(now)
	}
	return out
}

// ApplyUpdate returns the updated copy of doc. The _id never changes.
func ApplyUpdate(doc, patch Document, mode UpdateMode, now time.Time) Document {
	var out Document
	switch mode {
	case ModeReplace:
		out = Clone(patch)
		if out == nil {
			out = Document{}
		}
		out[FieldID] = doc[FieldID]
		if createdAt, ok := doc[FieldCreatedAt]; ok {
			out[FieldCreatedAt] = createdAt
		}
	default:
		out = Clone(doc)
		for k, v := range patch {
			if k == FieldID {
				continue
			}
			out[k] = cloneValue(v)
		}
	}
	out[FieldUpdatedAt] = FormatTime(now)
	return out
}

// Matches reports whether every query field equals the document field.
// A nil query value matches a missing or null field. Numbers compare by value.
func Matches(doc Document, query Query) bool {
	for field, want := range query {
		got, ok := doc[field]
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// MatchIndexes returns the positions of matching documents.
// Without multi only the first match is returned.
func MatchIndexes(docs []Document, query Query, multi bool) []int {
	var idx []int
	for i, doc := range docs {
		if !Matches(doc, query) {
			continue
		}
		idx = append(idx, i)
		if !multi {
			break
		}
	}
	return idx
}

// CheckDuplicateIDs fails when a new document reuses an existing _id or
// another new document's _id.
func CheckDuplicateIDs(existing, inserted []Document) error {
	seen := make(map[string]bool, len(existing)+len(inserted))
	for _, d := range existing {
		seen[d.ID()] = true
	}
	for _, d := range inserted {
		id := d.ID()
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = true
	}
	return nil
}

func Filter(docs []Document, query Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if Matches(doc, query) {
			out = append(out, doc)
		}
	}
	return out
}

func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func CloneAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Clone(d)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case Document:
		return Clone(val)
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Canonical brings a document into its JSON shape (numbers as float64,
// nested maps as map[string]any), the form every backend hands out.
func Canonical(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, err)
	}
	return out, nil
}

func valuesEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
