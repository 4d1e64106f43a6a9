package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/fitness"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

// DocumentID is the id of the single settings document in the theme collection.
const DocumentID = "settings"

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

const maxHeightCm = 300

var ErrInvalidSetting = errors.New("invalid setting")

type Settings struct {
	Theme    string  `json:"theme"`
	HeightCm float64 `json:"heightCm"`
}

func Defaults() Settings {
	return Settings{Theme: ThemeSystem}
}

type Service struct {
	store docstore.Store
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context) (_ Settings, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "settings.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	docs, err := s.store.Find(ctx, docstore.CollectionTheme, docstore.Query{docstore.FieldID: DocumentID})
	if err != nil {
		return Settings{}, err
	}

	settings := Defaults()
	if len(docs) == 0 {
		return settings, nil
	}
	doc := docs[0]
	if theme := doc.String(fitness.FieldTheme); validTheme(theme) {
		settings.Theme = theme
	}
	if height, ok := doc[fitness.FieldHeightCm].(float64); ok && height > 0 {
		settings.HeightCm = height
	}
	return settings, nil
}

func validTheme(theme string) bool {
	switch theme {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	default:
		return false
	}
}

func (s *Service) SetTheme(ctx context.Context, theme string) error {
	if !validTheme(theme) {
		return fmt.Errorf("%w: theme %q", ErrInvalidSetting, theme)
	}
	return s.upsert(ctx, docstore.Document{fitness.FieldTheme: theme})
}

func (s *Service) SetHeight(ctx context.Context, heightCm float64) error {
	if heightCm <= 0 || heightCm > maxHeightCm {
		return fmt.Errorf("%w: height %v cm", ErrInvalidSetting, heightCm)
	}
	return s.upsert(ctx, docstore.Document{fitness.FieldHeightCm: heightCm})
}

// upsert patches the settings document, creating it on first use.
func (s *Service) upsert(ctx context.Context, patch docstore.Document) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "settings.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	query := docstore.Query{docstore.FieldID: DocumentID}
	opts := docstore.UpdateOptions{Mode: docstore.ModePatch}

	updated, err := s.store.Update(ctx, docstore.CollectionTheme, query, patch, opts)
	if err != nil {
		return err
	}
	if updated > 0 {
		return nil
	}

	doc := docstore.Clone(patch)
	doc[docstore.FieldID] = DocumentID
	_, err = s.store.Insert(ctx, docstore.CollectionTheme, doc)
	if errors.Is(err, docstore.ErrDuplicateID) {
		// created concurrently
		log.Debugf("settings: document created concurrently, patching it")
		_, err = s.store.Update(ctx, docstore.CollectionTheme, query, patch, opts)
	}
	return err
}
