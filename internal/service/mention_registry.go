package service

import (
	"context"
	"errors"
	"sync"

	"allyboard/internal/constants"
	apperrors "allyboard/internal/errors"
	"allyboard/internal/metrics"
	"allyboard/internal/models"
	"allyboard/internal/privacy"
	"allyboard/internal/resolver"
	"allyboard/internal/store"
	"allyboard/internal/tracing"
	"allyboard/internal/validation"

	"github.com/sirupsen/logrus"
)

// MentionLookup is the read side of the registry the queue and direct sender need.
type MentionLookup interface {
	Lookup(ctx context.Context, kind models.MentionKind, scope models.Scope) (map[string]string, error)
}

// MentionRegistry holds name to external ID maps for roles and channels.
// Every call reads the persisted document, so edits from other processes
// sharing the store are visible; concurrent writers are last-write-wins.
type MentionRegistry struct {
	store  store.Store
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewMentionRegistry creates a registry over st.
func NewMentionRegistry(st store.Store, logger *logrus.Logger) *MentionRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	return &MentionRegistry{store: st, logger: logger}
}

// Upsert maps name to externalID in the given scope. A blank ID records a
// known name whose ID is not filled in yet.
func (r *MentionRegistry) Upsert(ctx context.Context, kind models.MentionKind, scope models.Scope, name, externalID string) error {
	if err := validateMentionKey(kind, scope, name); err != nil {
		return err
	}
	if err := validation.ValidateExternalID(externalID); err != nil {
		return err
	}

	key := resolver.NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return err
	}

	table := doc.Table(kind)
	if scope.IsGlobal() {
		table.Global[key] = externalID
	} else {
		scoped, ok := table.Scoped[scope.Group]
		if !ok {
			scoped = make(models.NameMap)
			table.Scoped[scope.Group] = scoped
		}
		scoped[key] = externalID
	}

	if err := r.save(ctx, doc); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		LogFieldKind:       kind,
		LogFieldScope:      scope.String(),
		LogFieldName:       key,
		LogFieldExternalID: privacy.MaskID(externalID),
	}).Info("Mention mapping saved")
	return nil
}

// Remove deletes name from the given scope. Removing an absent name is a no-op.
func (r *MentionRegistry) Remove(ctx context.Context, kind models.MentionKind, scope models.Scope, name string) error {
	if err := validateMentionKey(kind, scope, name); err != nil {
		return err
	}

	key := resolver.NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(ctx)
	if err != nil {
		return err
	}

	table := doc.Table(kind)
	if scope.IsGlobal() {
		if _, ok := table.Global[key]; !ok {
			return nil
		}
		delete(table.Global, key)
	} else {
		scoped, ok := table.Scoped[scope.Group]
		if !ok {
			return nil
		}
		if _, ok := scoped[key]; !ok {
			return nil
		}
		delete(scoped, key)
		if len(scoped) == 0 {
			delete(table.Scoped, scope.Group)
		}
	}

	if err := r.save(ctx, doc); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		LogFieldKind:  kind,
		LogFieldScope: scope.String(),
		LogFieldName:  key,
	}).Info("Mention mapping removed")
	return nil
}

// Lookup returns the global map overlaid with the scope's overrides.
// The result is a fresh map and never nil.
func (r *MentionRegistry) Lookup(ctx context.Context, kind models.MentionKind, scope models.Scope) (map[string]string, error) {
	if _, err := models.ParseMentionKind(string(kind)); err != nil {
		return nil, apperrors.NewValidationError("kind", string(kind), err.Error())
	}

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	table := doc.Table(kind)
	out := make(map[string]string, len(table.Global))
	for name, id := range table.Global {
		out[name] = id
	}
	if !scope.IsGlobal() {
		for name, id := range table.Scoped[scope.Group] {
			out[name] = id
		}
	}
	return out, nil
}

// Snapshot returns the whole registry document.
func (r *MentionRegistry) Snapshot(ctx context.Context) (*models.MentionMap, error) {
	return r.load(ctx)
}

func (r *MentionRegistry) load(ctx context.Context) (*models.MentionMap, error) {
	doc := &models.MentionMap{}
	found, err := store.LoadDocument(ctx, r.store, constants.MentionsStoreKey, constants.DocumentVersion, doc)
	if err != nil {
		if !errors.Is(err, store.ErrCorrupt) {
			return nil, apperrors.NewStoreError("read", constants.MentionsStoreKey, err)
		}
		r.logger.WithError(err).WithField(LogFieldStoreKey, constants.MentionsStoreKey).
			Warn("Mention registry unreadable, starting from an empty registry")
		metrics.IncrementCounter(metrics.StoreFallbacks, map[string]string{"key": constants.MentionsStoreKey},
			"Documents replaced by defaults after a failed read")
		doc = &models.MentionMap{}
		found = false
	}
	if !found {
		doc.Version = constants.DocumentVersion
	}
	ensureTables(doc)
	return doc, nil
}

func (r *MentionRegistry) save(ctx context.Context, doc *models.MentionMap) error {
	ctx, span := tracing.StartSpan(ctx, "mentions.save", tracing.AttrStoreKey.String(constants.MentionsStoreKey))
	defer span.End()

	doc.Version = constants.DocumentVersion
	if err := store.SaveDocument(ctx, r.store, constants.MentionsStoreKey, doc); err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.NewStoreError("write", constants.MentionsStoreKey, err)
	}
	return nil
}

func ensureTables(doc *models.MentionMap) {
	for _, t := range []*models.MentionTable{&doc.Roles, &doc.Channels} {
		if t.Global == nil {
			t.Global = make(models.NameMap)
		}
		if t.Scoped == nil {
			t.Scoped = make(map[string]models.NameMap)
		}
		for group, names := range t.Scoped {
			if names == nil {
				t.Scoped[group] = make(models.NameMap)
			}
		}
	}
}

func validateMentionKey(kind models.MentionKind, scope models.Scope, name string) error {
	if _, err := models.ParseMentionKind(string(kind)); err != nil {
		return apperrors.NewValidationError("kind", string(kind), err.Error())
	}
	if err := validation.ValidateScopeKey(scope.Group); err != nil {
		return err
	}
	return validation.ValidateMentionName(name)
}
