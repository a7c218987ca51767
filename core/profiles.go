package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"headerswitch/logger"
	"headerswitch/models"

	"github.com/tidwall/gjson"
)

// KeyValueStore is the persistent settings store. Values are JSON text.
type KeyValueStore interface {
	// Get returns the stored values of keys; absent keys are left out of the map.
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	// Set writes all values in one atomic operation and then notifies subscribers.
	Set(ctx context.Context, values map[string]string) error
	// Subscribe registers fn for change notifications until cancel is called.
	Subscribe(fn func(models.SettingChange)) (cancel func())
}

// DirectiveSyncer installs a compiled directive list in the network engine.
type DirectiveSyncer interface {
	Sync(ctx context.Context, directives []models.Directive) error
}

// RuleField names an editable column of a header rule.
type RuleField string

const (
	FieldEnabled RuleField = "enabled"
	FieldName    RuleField = "name"
	FieldValue   RuleField = "value"
)

func ParseRuleField(s string) (RuleField, error) {
	switch f := RuleField(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldEnabled, FieldName, FieldValue:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown field %q (want enabled, name or value)", ErrInvalidField, s)
}

var errNotLoaded = errors.New("profile store has not been loaded")

// ProfileStore owns the named profiles and the current selection. Every mutation is
// persisted in full and then compiled and synced to the engine before the next operation
// may start.
type ProfileStore struct {
	mu       sync.Mutex
	kv       KeyValueStore
	syncer   DirectiveSyncer
	profiles *models.ProfileSet
	current  string
}

// NewProfileStore creates a store backed by kv. syncer may be nil when no engine runs in
// this process (CLI edits); changes are then only persisted.
func NewProfileStore(kv KeyValueStore, syncer DirectiveSyncer) *ProfileStore {
	return &ProfileStore{kv: kv, syncer: syncer}
}

// Load resolves the persisted state: stored profiles, else a migrated legacy flat list,
// else a single default profile. Stored values of the wrong JSON type count as absent.
// A dangling current selection is repaired. Migrated or repaired state is written back so
// migration happens once.
func (s *ProfileStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Reload re-reads the persisted state and syncs the engine to it.
func (s *ProfileStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	return s.applyLocked(ctx)
}

// Apply compiles the active profile and syncs the engine without changing state.
func (s *ProfileStore) Apply(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		return errNotLoaded
	}
	return s.applyLocked(ctx)
}

func (s *ProfileStore) loadLocked(ctx context.Context) error {
	values, err := s.kv.Get(ctx, models.ProfilesKey, models.CurrentProfileKey, models.LegacyRulesKey)
	if err != nil {
		return fmt.Errorf("reading profile state: %w", err)
	}

	dirty := false
	profiles := &models.ProfileSet{}
	if raw, ok := values[models.ProfilesKey]; ok && gjson.Valid(raw) && gjson.Parse(raw).IsObject() {
		if err := json.Unmarshal([]byte(raw), profiles); err != nil {
			return fmt.Errorf("decoding stored profiles: %w", err)
		}
	} else if rawLegacy, ok := values[models.LegacyRulesKey]; ok {
		legacy := models.ParseRuleList(rawLegacy)
		profiles = models.NewProfileSet(models.DefaultProfileName, legacy)
		logger.Info("ProfileStore: migrated %d legacy rules into profile %q", len(legacy), models.DefaultProfileName)
		dirty = true
	} else {
		profiles = models.DefaultProfileSet()
		dirty = true
	}

	current := models.DefaultProfileName
	if raw, ok := values[models.CurrentProfileKey]; ok && gjson.Valid(raw) && gjson.Parse(raw).Type == gjson.String {
		current = gjson.Parse(raw).String()
	} else {
		dirty = true
	}

	if !profiles.Has(current) {
		if profiles.Len() == 0 {
			profiles = models.DefaultProfileSet()
		}
		logger.Info("ProfileStore: current profile %q not found, selecting %q", current, profiles.First())
		current = profiles.First()
		dirty = true
	}

	s.profiles = profiles
	s.current = current
	if dirty {
		return s.persistLocked(ctx)
	}
	return nil
}

func (s *ProfileStore) persistLocked(ctx context.Context) error {
	profilesJSON, err := json.Marshal(s.profiles)
	if err != nil {
		return fmt.Errorf("marshalling profiles: %w", err)
	}
	currentJSON, err := json.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("marshalling current profile: %w", err)
	}
	if err := s.kv.Set(ctx, map[string]string{
		models.ProfilesKey:       string(profilesJSON),
		models.CurrentProfileKey: string(currentJSON),
	}); err != nil {
		return fmt.Errorf("persisting profiles: %w", err)
	}
	return nil
}

func (s *ProfileStore) applyLocked(ctx context.Context) error {
	if s.syncer == nil {
		return nil
	}
	rules, _ := s.profiles.Get(s.current)
	if err := s.syncer.Sync(ctx, CompileDirectives(rules)); err != nil {
		return fmt.Errorf("syncing profile %q: %w", s.current, err)
	}
	return nil
}

// commitLocked persists and syncs after a mutation. A failed persist skips the sync and
// leaves memory ahead of storage until the next successful mutation.
func (s *ProfileStore) commitLocked(ctx context.Context, action string) error {
	if err := s.persistLocked(ctx); err != nil {
		logger.Error("ProfileStore: %s: %v", action, err)
		return err
	}
	if err := s.applyLocked(ctx); err != nil {
		logger.Error("ProfileStore: %s: %v", action, err)
		return err
	}
	logger.Debug("ProfileStore: %s (current profile %q)", action, s.current)
	return nil
}

func (s *ProfileStore) lock() (func(), error) {
	s.mu.Lock()
	if s.profiles == nil {
		s.mu.Unlock()
		return nil, errNotLoaded
	}
	return s.mu.Unlock, nil
}

func (s *ProfileStore) SelectProfile(ctx context.Context, name string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if !s.profiles.Has(name) {
		return fmt.Errorf("select %q: %w", name, ErrNotFound)
	}
	s.current = name
	return s.commitLocked(ctx, fmt.Sprintf("selected profile %q", name))
}

// CreateProfile adds a profile holding one default rule and selects it.
func (s *ProfileStore) CreateProfile(ctx context.Context, name string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: profile name is empty", ErrDuplicateName)
	}
	if s.profiles.Has(name) {
		return fmt.Errorf("create %q: %w", name, ErrDuplicateName)
	}
	s.profiles.Put(name, []models.HeaderRule{models.DefaultHeaderRule()})
	s.current = name
	return s.commitLocked(ctx, fmt.Sprintf("created profile %q", name))
}

// RenameProfile keeps the profile's position and follows it with the current selection.
func (s *ProfileStore) RenameProfile(ctx context.Context, oldName, newName string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if !s.profiles.Has(oldName) {
		return fmt.Errorf("rename %q: %w", oldName, ErrNotFound)
	}
	newName = strings.TrimSpace(newName)
	if newName == oldName {
		return nil
	}
	if newName == "" {
		return fmt.Errorf("%w: profile name is empty", ErrDuplicateName)
	}
	if s.profiles.Has(newName) {
		return fmt.Errorf("rename %q to %q: %w", oldName, newName, ErrDuplicateName)
	}
	s.profiles.Rename(oldName, newName)
	if s.current == oldName {
		s.current = newName
	}
	return s.commitLocked(ctx, fmt.Sprintf("renamed profile %q to %q", oldName, newName))
}

// DeleteProfile removes name. Deleting the current profile selects the first remaining one.
func (s *ProfileStore) DeleteProfile(ctx context.Context, name string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if s.profiles.Len() <= 1 {
		return fmt.Errorf("delete %q: %w", name, ErrLastProfile)
	}
	if !s.profiles.Delete(name) {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}
	if s.current == name {
		s.current = s.profiles.First()
	}
	return s.commitLocked(ctx, fmt.Sprintf("deleted profile %q", name))
}

// AddRule appends a default rule to the active profile and returns its index.
func (s *ProfileStore) AddRule(ctx context.Context) (int, error) {
	unlock, err := s.lock()
	if err != nil {
		return -1, err
	}
	defer unlock()

	rules, _ := s.profiles.Get(s.current)
	rules = append(rules, models.DefaultHeaderRule())
	s.profiles.Put(s.current, rules)
	return len(rules) - 1, s.commitLocked(ctx, fmt.Sprintf("added rule %d", len(rules)-1))
}

// UpdateRule sets one field of the rule at index in the active profile. Enabled values are
// parsed with strconv.ParseBool.
func (s *ProfileStore) UpdateRule(ctx context.Context, index int, field RuleField, value string) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	rules, _ := s.profiles.Get(s.current)
	if index < 0 || index >= len(rules) {
		return fmt.Errorf("update rule %d of %d: %w", index, len(rules), ErrIndexOutOfRange)
	}
	switch field {
	case FieldEnabled:
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: enabled must be a boolean, got %q", ErrInvalidField, value)
		}
		rules[index].Enabled = enabled
	case FieldName:
		rules[index].Name = value
	case FieldValue:
		rules[index].Value = value
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidField, field)
	}
	return s.commitLocked(ctx, fmt.Sprintf("updated %s of rule %d", field, index))
}

func (s *ProfileStore) DeleteRule(ctx context.Context, index int) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	rules, _ := s.profiles.Get(s.current)
	if index < 0 || index >= len(rules) {
		return fmt.Errorf("delete rule %d of %d: %w", index, len(rules), ErrIndexOutOfRange)
	}
	rules = append(rules[:index], rules[index+1:]...)
	s.profiles.Put(s.current, rules)
	return s.commitLocked(ctx, fmt.Sprintf("deleted rule %d", index))
}

// CurrentProfile returns the active profile name, "" before Load.
func (s *ProfileStore) CurrentProfile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *ProfileStore) ProfileNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		return nil
	}
	return s.profiles.Names()
}

// Rules returns a copy of the named profile's rules.
func (s *ProfileStore) Rules(name string) ([]models.HeaderRule, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rules, ok := s.profiles.Get(name)
	if !ok {
		return nil, fmt.Errorf("rules of %q: %w", name, ErrNotFound)
	}
	return models.CloneRules(rules), nil
}

// ActiveRules returns a copy of the current profile's rules.
func (s *ProfileStore) ActiveRules() []models.HeaderRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		return nil
	}
	rules, _ := s.profiles.Get(s.current)
	return models.CloneRules(rules)
}

// CompiledDirectives compiles the current profile without installing anything.
func (s *ProfileStore) CompiledDirectives() []models.Directive {
	return CompileDirectives(s.ActiveRules())
}

// Snapshot returns a deep copy of the in-memory state.
func (s *ProfileStore) Snapshot() models.ProfileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		return models.ProfileState{Profiles: &models.ProfileSet{}}
	}
	return models.ProfileState{Profiles: s.profiles.Clone(), CurrentProfile: s.current}
}

// FollowExternalChanges reloads and re-syncs whenever another process rewrites the profile
// keys. Local writes are ignored.
func (s *ProfileStore) FollowExternalChanges(ctx context.Context) (cancel func()) {
	return s.kv.Subscribe(func(change models.SettingChange) {
		if change.Origin != models.OriginExternal {
			return
		}
		if change.Key != models.ProfilesKey && change.Key != models.CurrentProfileKey {
			return
		}
		if err := s.Reload(ctx); err != nil {
			logger.Error("ProfileStore: reloading after external change of %q: %v", change.Key, err)
			return
		}
		logger.Info("ProfileStore: reloaded after external change of %q", change.Key)
	})
}
