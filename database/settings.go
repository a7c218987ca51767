package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"headerswitch/logger"
	"headerswitch/models"
)

// SettingsStore is the key/value view of the app_settings table. Values are JSON text.
// Writes made through the store notify subscribers immediately; Watch notices writes
// made by other processes sharing the database file.
type SettingsStore struct {
	db *sql.DB

	ioMu sync.Mutex // serializes Set and polling so a local write is never seen as external

	mu      sync.Mutex
	known   map[string]string
	subs    map[int]func(models.SettingChange)
	nextSub int
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{
		db:    db,
		known: make(map[string]string),
		subs:  make(map[int]func(models.SettingChange)),
	}
}

// Get returns the values of keys that exist. With no keys it returns every setting.
func (s *SettingsStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	query := "SELECT key, value FROM app_settings"
	args := make([]interface{}, 0, len(keys))
	if len(keys) > 0 {
		query += " WHERE key IN (?" + strings.Repeat(",?", len(keys)-1) + ")"
		for _, k := range keys {
			args = append(args, k)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying settings %v: %w", keys, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}
	return values, nil
}

// Set saves all values in one transaction and then notifies subscribers of the keys whose
// value changed.
func (s *SettingsStore) Set(ctx context.Context, values map[string]string) error {
	changes, err := s.write(ctx, values)
	if err != nil {
		return err
	}
	s.notify(changes)
	return nil
}

func (s *SettingsStore) write(ctx context.Context, values map[string]string) ([]models.SettingChange, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning settings transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO app_settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)")
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to prepare set setting statement: %w", err)
	}
	defer stmt.Close()

	keys := sortedKeys(values)
	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key, values[key]); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to execute set setting for key '%s': %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing settings %v: %w", keys, err)
	}
	return s.record(values, models.OriginLocal), nil
}

// Subscribe registers fn for every change notification until cancel is called. fn runs on
// the goroutine that made or observed the write.
func (s *SettingsStore) Subscribe(fn func(models.SettingChange)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Watch polls the table every interval until ctx is done and reports values changed by
// other processes with OriginExternal. Values present when Watch starts are taken as known.
func (s *SettingsStore) Watch(ctx context.Context, interval time.Duration) error {
	if err := s.poll(ctx, false); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.poll(ctx, true); err != nil && ctx.Err() == nil {
				logger.Error("SettingsStore: polling for external changes: %v", err)
			}
		}
	}
}

func (s *SettingsStore) poll(ctx context.Context, emit bool) error {
	s.ioMu.Lock()
	values, err := s.Get(ctx)
	if err != nil {
		s.ioMu.Unlock()
		return err
	}
	changes := s.record(values, models.OriginExternal)
	s.ioMu.Unlock()

	if emit {
		s.notify(changes)
	}
	return nil
}

// record stores values as known and returns the ones that differ from what was known.
func (s *SettingsStore) record(values map[string]string, origin models.ChangeOrigin) []models.SettingChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changes []models.SettingChange
	for _, key := range sortedKeys(values) {
		if old, ok := s.known[key]; ok && old == values[key] {
			continue
		}
		s.known[key] = values[key]
		changes = append(changes, models.SettingChange{Key: key, Value: values[key], Origin: origin})
	}
	return changes
}

func (s *SettingsStore) notify(changes []models.SettingChange) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(models.SettingChange), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, change := range changes {
		logger.Debug("SettingsStore: %s change of %q", change.Origin, change.Key)
		for _, fn := range subs {
			fn(change)
		}
	}
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
