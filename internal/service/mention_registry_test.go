package service

import (
	"context"
	"errors"
	"testing"

	"allyboard/internal/constants"
	apperrors "allyboard/internal/errors"
	"allyboard/internal/metrics"
	"allyboard/internal/models"
	"allyboard/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*MentionRegistry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewMentionRegistry(st, quietLogger()), st
}

func TestMentionRegistry_UpsertNormalizesAndOverwrites(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, models.GlobalScope, "  Ops ", "111"))
	require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, models.GlobalScope, "OPS", "112"))
	require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, models.GlobalScope, "War   Room", ""))

	roles, err := reg.Lookup(ctx, models.MentionKindRole, models.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ops": "112", "war room": ""}, roles)

	channels, err := reg.Lookup(ctx, models.MentionKindChannel, models.GlobalScope)
	require.NoError(t, err)
	assert.NotNil(t, channels)
	assert.Empty(t, channels)
}

func TestMentionRegistry_LookupScopeOverridesGlobal(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	ally := models.Scope{Group: "ALLY1"}

	require.NoError(t, reg.Upsert(ctx, models.MentionKindChannel, models.GlobalScope, "war", "G-WAR"))
	require.NoError(t, reg.Upsert(ctx, models.MentionKindChannel, models.GlobalScope, "general", "G-GEN"))
	require.NoError(t, reg.Upsert(ctx, models.MentionKindChannel, ally, "War", "A-WAR"))
	require.NoError(t, reg.Upsert(ctx, models.MentionKindChannel, models.Scope{Group: "ALLY2"}, "trade", "B-TRADE"))

	scoped, err := reg.Lookup(ctx, models.MentionKindChannel, ally)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"war": "A-WAR", "general": "G-GEN"}, scoped)

	global, err := reg.Lookup(ctx, models.MentionKindChannel, models.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"war": "G-WAR", "general": "G-GEN"}, global)

	// the returned map is a copy
	scoped["war"] = "mutated"
	again, err := reg.Lookup(ctx, models.MentionKindChannel, ally)
	require.NoError(t, err)
	assert.Equal(t, "A-WAR", again["war"])
}

func TestMentionRegistry_Remove(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	ally := models.Scope{Group: "ALLY1"}

	require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, models.GlobalScope, "ops", "1"))
	require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, ally, "ops", "2"))

	require.NoError(t, reg.Remove(ctx, models.MentionKindRole, ally, "OPS"))

	snap, err := reg.Snapshot(ctx)
	require.NoError(t, err)
	_, scopeLeft := snap.Roles.Scoped["ALLY1"]
	assert.False(t, scopeLeft, "empty scope map should be dropped")

	roles, err := reg.Lookup(ctx, models.MentionKindRole, ally)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ops": "1"}, roles, "global shows through once the override is gone")

	t.Run("absent name is a no-op", func(t *testing.T) {
		assert.NoError(t, reg.Remove(ctx, models.MentionKindRole, models.GlobalScope, "nobody"))
		assert.NoError(t, reg.Remove(ctx, models.MentionKindRole, models.Scope{Group: "NOPE"}, "ops"))
	})
}

func TestMentionRegistry_Validation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	tests := []struct {
		name  string
		kind  models.MentionKind
		scope models.Scope
		key   string
		id    string
	}{
		{name: "empty name", kind: models.MentionKindRole, key: "   ", id: "1"},
		{name: "bad kind", kind: models.MentionKind("emoji"), key: "ops", id: "1"},
		{name: "bad scope", kind: models.MentionKindRole, scope: models.Scope{Group: "a b"}, key: "ops", id: "1"},
		{name: "id with mention syntax", kind: models.MentionKindRole, key: "ops", id: "<@&1>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Upsert(ctx, tt.kind, tt.scope, tt.key, tt.id)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
		})
	}

	_, err := reg.Lookup(ctx, models.MentionKind("emoji"), models.GlobalScope)
	assert.Error(t, err)
}

func TestMentionRegistry_PersistedDocument(t *testing.T) {
	ctx := context.Background()
	reg, st := newTestRegistry(t)

	require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, models.GlobalScope, "Ops", "111"))

	var doc models.MentionMap
	found, err := store.LoadDocument(ctx, st, constants.MentionsStoreKey, constants.DocumentVersion, &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, models.NameMap{"ops": "111"}, doc.Roles.Global)

	// a second registry over the same store sees the write
	other := NewMentionRegistry(st, quietLogger())
	roles, err := other.Lookup(ctx, models.MentionKindRole, models.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, "111", roles["ops"])
}

func TestMentionRegistry_CorruptDocumentFallsBackToEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "unparsable", raw: "{not json"},
		{name: "version mismatch", raw: `{"version":2,"roles":{"global":{"ops":"1"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.GetRegistry().Reset()
			ctx := context.Background()
			reg, st := newTestRegistry(t)
			require.NoError(t, st.Set(ctx, constants.MentionsStoreKey, []byte(tt.raw)))

			roles, err := reg.Lookup(ctx, models.MentionKindRole, models.GlobalScope)
			require.NoError(t, err)
			assert.Empty(t, roles)
			assert.Equal(t, float64(1), metrics.GetRegistry().CounterValue(metrics.StoreFallbacks,
				map[string]string{"key": constants.MentionsStoreKey}))

			// the next write replaces the corrupt blob
			require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, models.GlobalScope, "ops", "9"))
			roles, err = reg.Lookup(ctx, models.MentionKindRole, models.GlobalScope)
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"ops": "9"}, roles)
		})
	}
}

func TestMentionRegistry_NullScopedTable(t *testing.T) {
	ctx := context.Background()
	reg, st := newTestRegistry(t)
	raw := `{"version":1,"roles":{"global":{},"scoped":{"g1":null}},"channels":{"global":null,"scoped":{"g1":null}}}`
	require.NoError(t, st.Set(ctx, constants.MentionsStoreKey, []byte(raw)))

	g1 := models.Scope{Group: "g1"}
	require.NotPanics(t, func() {
		require.NoError(t, reg.Upsert(ctx, models.MentionKindRole, g1, "ops", "1"))
		require.NoError(t, reg.Upsert(ctx, models.MentionKindChannel, g1, "war-room", "2"))
	})

	roles, err := reg.Lookup(ctx, models.MentionKindRole, g1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ops": "1"}, roles)

	channels, err := reg.Lookup(ctx, models.MentionKindChannel, g1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"war-room": "2"}, channels)
}

func TestMentionRegistry_StoreFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	reg := NewMentionRegistry(&failingStore{err: errors.New("connection refused")}, quietLogger())

	_, err := reg.Lookup(ctx, models.MentionKindRole, models.GlobalScope)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStoreUnavailable, apperrors.GetCode(err))

	err = reg.Upsert(ctx, models.MentionKindRole, models.GlobalScope, "ops", "1")
	assert.Error(t, err)
}
