package core

import (
	"context"
	"errors"
	"testing"

	"headerswitch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoProfiles = `{"Work":[{"enabled":true,"name":"X-Env","value":"work"}],"Home":[{"enabled":false,"name":"X-Env","value":"home"}]}`

func loadedStore(t *testing.T, values map[string]string) (*ProfileStore, *memKV, *recordingSyncer) {
	t.Helper()
	kv := newMemKV(values)
	syncer := &recordingSyncer{}
	store := NewProfileStore(kv, syncer)
	require.NoError(t, store.Load(context.Background()))
	return store, kv, syncer
}

func TestProfileStoreLoadFreshState(t *testing.T) {
	store, kv, syncer := loadedStore(t, nil)

	assert.Equal(t, models.DefaultProfileName, store.CurrentProfile())
	assert.Equal(t, []string{models.DefaultProfileName}, store.ProfileNames())
	assert.Equal(t, []models.HeaderRule{{Enabled: true}}, store.ActiveRules())

	assert.JSONEq(t, `{"Default":[{"enabled":true,"name":"","value":""}]}`, kv.value(models.ProfilesKey))
	assert.JSONEq(t, `"Default"`, kv.value(models.CurrentProfileKey))
	assert.Zero(t, syncer.count(), "Load must not sync")
}

func TestProfileStoreLoadMigratesLegacyRules(t *testing.T) {
	store, kv, _ := loadedStore(t, map[string]string{
		models.LegacyRulesKey: `[{"enabled":true,"name":"X-Legacy","value":"1"},{"name":"X-Off"}]`,
	})

	assert.Equal(t, models.DefaultProfileName, store.CurrentProfile())
	assert.Equal(t, []models.HeaderRule{
		{Enabled: true, Name: "X-Legacy", Value: "1"},
		{Enabled: false, Name: "X-Off"},
	}, store.ActiveRules())
	assert.Equal(t, 1, kv.setCount())

	// a second load reads the migrated profiles and writes nothing
	again := NewProfileStore(kv, nil)
	require.NoError(t, again.Load(context.Background()))
	assert.Equal(t, store.ActiveRules(), again.ActiveRules())
	assert.Equal(t, 1, kv.setCount())
}

func TestProfileStoreLoadKeepsStoredOrderAndSelection(t *testing.T) {
	store, kv, _ := loadedStore(t, map[string]string{
		models.ProfilesKey:       twoProfiles,
		models.CurrentProfileKey: `"Home"`,
	})

	assert.Equal(t, []string{"Work", "Home"}, store.ProfileNames())
	assert.Equal(t, "Home", store.CurrentProfile())
	assert.Zero(t, kv.setCount())
}

func TestProfileStoreLoadRepairs(t *testing.T) {
	tests := []struct {
		name        string
		values      map[string]string
		wantCurrent string
		wantNames   []string
	}{
		{"dangling selection", map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Gone"`}, "Work", []string{"Work", "Home"}},
		{"missing selection", map[string]string{models.ProfilesKey: twoProfiles}, "Work", []string{"Work", "Home"}},
		{"selection not a string", map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `42`}, "Work", []string{"Work", "Home"}},
		{"empty profile object", map[string]string{models.ProfilesKey: `{}`, models.CurrentProfileKey: `"Work"`}, "Default", []string{"Default"}},
		{"profiles not an object", map[string]string{models.ProfilesKey: `null`}, "Default", []string{"Default"}},
		{"profiles not valid json", map[string]string{models.ProfilesKey: `{bad`, models.CurrentProfileKey: `"Work"`}, "Default", []string{"Default"}},
		{"selection not valid json", map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Home`}, "Work", []string{"Work", "Home"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, kv, _ := loadedStore(t, tt.values)
			assert.Equal(t, tt.wantCurrent, store.CurrentProfile())
			assert.Equal(t, tt.wantNames, store.ProfileNames())
			assert.Equal(t, 1, kv.setCount())
		})
	}
}

func TestProfileStoreRequiresLoad(t *testing.T) {
	store := NewProfileStore(newMemKV(nil), nil)
	ctx := context.Background()
	assert.ErrorIs(t, store.SelectProfile(ctx, "x"), errNotLoaded)
	assert.ErrorIs(t, store.Apply(ctx), errNotLoaded)
	_, err := store.AddRule(ctx)
	assert.ErrorIs(t, err, errNotLoaded)
	assert.Empty(t, store.CurrentProfile())
	assert.Nil(t, store.ActiveRules())
}

func TestProfileStoreCreateProfile(t *testing.T) {
	ctx := context.Background()
	store, kv, syncer := loadedStore(t, nil)

	require.NoError(t, store.CreateProfile(ctx, "  Staging "))
	assert.Equal(t, "Staging", store.CurrentProfile())
	assert.Equal(t, []string{"Default", "Staging"}, store.ProfileNames())
	assert.Equal(t, []models.HeaderRule{{Enabled: true}}, store.ActiveRules())
	assert.JSONEq(t, `"Staging"`, kv.value(models.CurrentProfileKey))
	assert.Equal(t, 1, syncer.count())
	assert.Empty(t, syncer.last())

	assert.ErrorIs(t, store.CreateProfile(ctx, "Staging"), ErrDuplicateName)
	assert.ErrorIs(t, store.CreateProfile(ctx, "   "), ErrDuplicateName)
	assert.Equal(t, []string{"Default", "Staging"}, store.ProfileNames())
	assert.Equal(t, 1, syncer.count())
}

func TestProfileStoreSelectProfile(t *testing.T) {
	ctx := context.Background()
	store, kv, syncer := loadedStore(t, map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Home"`})

	require.NoError(t, store.SelectProfile(ctx, "Work"))
	assert.Equal(t, "Work", store.CurrentProfile())
	assert.JSONEq(t, `"Work"`, kv.value(models.CurrentProfileKey))
	require.Len(t, syncer.last(), 1)
	assert.Equal(t, "work", syncer.last()[0].Action.RequestHeaders[0].Value)

	assert.ErrorIs(t, store.SelectProfile(ctx, "Nope"), ErrNotFound)
	assert.Equal(t, "Work", store.CurrentProfile())
}

func TestProfileStoreRenameProfile(t *testing.T) {
	ctx := context.Background()
	store, kv, _ := loadedStore(t, map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Work"`})

	require.NoError(t, store.RenameProfile(ctx, "Work", "Office"))
	assert.Equal(t, []string{"Office", "Home"}, store.ProfileNames())
	assert.Equal(t, "Office", store.CurrentProfile())
	assert.JSONEq(t, `{"Office":[{"enabled":true,"name":"X-Env","value":"work"}],"Home":[{"enabled":false,"name":"X-Env","value":"home"}]}`, kv.value(models.ProfilesKey))

	require.NoError(t, store.RenameProfile(ctx, "Home", "House"))
	assert.Equal(t, "Office", store.CurrentProfile(), "renaming another profile keeps the selection")

	sets := kv.setCount()
	require.NoError(t, store.RenameProfile(ctx, "House", " House "))
	assert.Equal(t, sets, kv.setCount(), "renaming to the same name is a no-op")

	assert.ErrorIs(t, store.RenameProfile(ctx, "Missing", "X"), ErrNotFound)
	assert.ErrorIs(t, store.RenameProfile(ctx, "House", "Office"), ErrDuplicateName)
	assert.ErrorIs(t, store.RenameProfile(ctx, "House", ""), ErrDuplicateName)
	assert.Equal(t, []string{"Office", "House"}, store.ProfileNames())
}

func TestProfileStoreDeleteProfile(t *testing.T) {
	ctx := context.Background()
	store, _, syncer := loadedStore(t, map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Home"`})

	assert.ErrorIs(t, store.DeleteProfile(ctx, "Nope"), ErrNotFound)

	require.NoError(t, store.DeleteProfile(ctx, "Home"))
	assert.Equal(t, "Work", store.CurrentProfile())
	assert.Len(t, syncer.last(), 1)

	assert.ErrorIs(t, store.DeleteProfile(ctx, "Work"), ErrLastProfile)
	assert.ErrorIs(t, store.DeleteProfile(ctx, "Nope"), ErrLastProfile)
	assert.Equal(t, []string{"Work"}, store.ProfileNames())
}

func TestProfileStoreRuleEditing(t *testing.T) {
	ctx := context.Background()
	store, kv, syncer := loadedStore(t, nil)

	index, err := store.AddRule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, index)

	require.NoError(t, store.UpdateRule(ctx, 1, FieldName, "X-User"))
	require.NoError(t, store.UpdateRule(ctx, 1, FieldValue, "张三"))
	require.NoError(t, store.UpdateRule(ctx, 0, FieldEnabled, "false"))

	assert.Equal(t, []models.HeaderRule{
		{Enabled: false},
		{Enabled: true, Name: "X-User", Value: "张三"},
	}, store.ActiveRules())
	assert.JSONEq(t, `{"Default":[{"enabled":false,"name":"","value":""},{"enabled":true,"name":"X-User","value":"张三"}]}`, kv.value(models.ProfilesKey))

	directives := syncer.last()
	require.Len(t, directives, 1)
	assert.Equal(t, 1, directives[0].ID)
	assert.Equal(t, "%E5%BC%A0%E4%B8%89", directives[0].Action.RequestHeaders[0].Value)

	assert.ErrorIs(t, store.UpdateRule(ctx, 2, FieldName, "x"), ErrIndexOutOfRange)
	assert.ErrorIs(t, store.UpdateRule(ctx, -1, FieldName, "x"), ErrIndexOutOfRange)
	assert.ErrorIs(t, store.UpdateRule(ctx, 0, FieldEnabled, "maybe"), ErrInvalidField)
	assert.ErrorIs(t, store.UpdateRule(ctx, 0, RuleField("color"), "red"), ErrInvalidField)

	require.NoError(t, store.DeleteRule(ctx, 0))
	assert.Equal(t, []models.HeaderRule{{Enabled: true, Name: "X-User", Value: "张三"}}, store.ActiveRules())
	assert.ErrorIs(t, store.DeleteRule(ctx, 1), ErrIndexOutOfRange)

	require.NoError(t, store.DeleteRule(ctx, 0))
	assert.Empty(t, store.ActiveRules())
	assert.Empty(t, syncer.last())
}

func TestProfileStorePersistFailureSkipsSync(t *testing.T) {
	ctx := context.Background()
	store, kv, syncer := loadedStore(t, nil)
	kv.setErr = errors.New("disk full")

	err := store.CreateProfile(ctx, "Broken")
	assert.ErrorIs(t, err, kv.setErr)
	assert.Zero(t, syncer.count())
}

func TestProfileStoreSyncFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	store, _, syncer := loadedStore(t, nil)
	syncer.err = errors.New("engine down")

	err := store.CreateProfile(ctx, "Other")
	assert.ErrorIs(t, err, syncer.err)
	assert.Equal(t, "Other", store.CurrentProfile(), "state stays persisted")
}

func TestProfileStoreAccessorsReturnCopies(t *testing.T) {
	store, _, _ := loadedStore(t, map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Work"`})

	rules := store.ActiveRules()
	rules[0].Value = "changed"
	assert.Equal(t, "work", store.ActiveRules()[0].Value)

	home, err := store.Rules("Home")
	require.NoError(t, err)
	home[0].Name = "changed"
	again, _ := store.Rules("Home")
	assert.Equal(t, "X-Env", again[0].Name)

	_, err = store.Rules("Nope")
	assert.ErrorIs(t, err, ErrNotFound)

	snapshot := store.Snapshot()
	snapshot.Profiles.Delete("Home")
	assert.Equal(t, []string{"Work", "Home"}, store.ProfileNames())
}

func TestProfileStoreWithMemoryEngine(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()
	store := NewProfileStore(newMemKV(map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Work"`}), NewSynchronizer(engine))
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.Apply(ctx))

	installed, _, err := engine.DynamicRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.CompiledDirectives(), installed)

	require.NoError(t, store.SelectProfile(ctx, "Home"))
	installed, _, _ = engine.DynamicRules(ctx)
	assert.Empty(t, installed)
}

func TestProfileStoreRejectsMalformedHeaders(t *testing.T) {
	ctx := context.Background()
	engine := NewMemoryEngine()
	store := NewProfileStore(newMemKV(map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Work"`}), NewSynchronizer(engine))
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.Apply(ctx))
	before, _, _ := engine.DynamicRules(ctx)
	require.Len(t, before, 1)

	tests := []struct {
		name  string
		field RuleField
		value string
		reset string
	}{
		{"space in name", FieldName, "X Bad", "X-Env"},
		{"newline in value", FieldValue, "a\nInjected: 1", "work"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpdateRule(ctx, 0, tt.field, tt.value)
			assert.ErrorIs(t, err, ErrInvalidDirective)

			installed, _, _ := engine.DynamicRules(ctx)
			assert.Equal(t, before, installed)

			require.NoError(t, store.UpdateRule(ctx, 0, tt.field, tt.reset))
		})
	}
}

func TestProfileStoreStateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store, kv, _ := loadedStore(t, map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Work"`})

	require.NoError(t, store.CreateProfile(ctx, "Staging"))
	_, err := store.AddRule(ctx)
	require.NoError(t, err)
	require.NoError(t, store.UpdateRule(ctx, 1, FieldName, "X-Stage"))
	require.NoError(t, store.UpdateRule(ctx, 1, FieldValue, "ü"))
	require.NoError(t, store.RenameProfile(ctx, "Home", "House"))
	require.NoError(t, store.SelectProfile(ctx, "Work"))
	require.NoError(t, store.UpdateRule(ctx, 0, FieldEnabled, "false"))

	reloaded := NewProfileStore(kv, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, store.Snapshot(), reloaded.Snapshot())
	assert.Equal(t, []string{"Work", "House", "Staging"}, reloaded.ProfileNames())
	assert.Equal(t, "Work", reloaded.CurrentProfile())
}

func TestProfileStoreFollowExternalChanges(t *testing.T) {
	ctx := context.Background()
	store, kv, syncer := loadedStore(t, map[string]string{models.ProfilesKey: twoProfiles, models.CurrentProfileKey: `"Work"`})
	cancel := store.FollowExternalChanges(ctx)

	// local writes do not reload
	require.NoError(t, store.CreateProfile(ctx, "Local"))
	assert.Equal(t, 1, syncer.count())

	kv.external(models.CurrentProfileKey, `"Home"`)
	assert.Equal(t, "Home", store.CurrentProfile())
	assert.Equal(t, 2, syncer.count())

	kv.external("unrelated", `1`)
	assert.Equal(t, 2, syncer.count())

	cancel()
	kv.external(models.CurrentProfileKey, `"Work"`)
	assert.Equal(t, "Home", store.CurrentProfile())
}
