package core

import (
	"context"
	"sort"
	"sync"

	"headerswitch/models"
)

// memKV is an in-memory KeyValueStore. external simulates a write by another process.
type memKV struct {
	mu      sync.Mutex
	values  map[string]string
	subs    map[int]func(models.SettingChange)
	nextSub int
	sets    int
	setErr  error
}

func newMemKV(values map[string]string) *memKV {
	kv := &memKV{values: make(map[string]string), subs: make(map[int]func(models.SettingChange))}
	for k, v := range values {
		kv.values[k] = v
	}
	return kv
}

func (kv *memKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := kv.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (kv *memKV) Set(ctx context.Context, values map[string]string) error {
	kv.mu.Lock()
	if kv.setErr != nil {
		kv.mu.Unlock()
		return kv.setErr
	}
	kv.sets++
	changes := kv.storeLocked(values, models.OriginLocal)
	kv.mu.Unlock()
	kv.notify(changes)
	return nil
}

func (kv *memKV) external(key, value string) {
	kv.mu.Lock()
	changes := kv.storeLocked(map[string]string{key: value}, models.OriginExternal)
	kv.mu.Unlock()
	kv.notify(changes)
}

func (kv *memKV) storeLocked(values map[string]string, origin models.ChangeOrigin) []models.SettingChange {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var changes []models.SettingChange
	for _, k := range keys {
		if old, ok := kv.values[k]; ok && old == values[k] {
			continue
		}
		kv.values[k] = values[k]
		changes = append(changes, models.SettingChange{Key: k, Value: values[k], Origin: origin})
	}
	return changes
}

func (kv *memKV) Subscribe(fn func(models.SettingChange)) func() {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	id := kv.nextSub
	kv.nextSub++
	kv.subs[id] = fn
	return func() {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		delete(kv.subs, id)
	}
}

func (kv *memKV) notify(changes []models.SettingChange) {
	kv.mu.Lock()
	subs := make([]func(models.SettingChange), 0, len(kv.subs))
	for _, fn := range kv.subs {
		subs = append(subs, fn)
	}
	kv.mu.Unlock()
	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

func (kv *memKV) value(key string) string {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.values[key]
}

func (kv *memKV) setCount() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.sets
}

// recordingSyncer keeps every directive list it was asked to install.
type recordingSyncer struct {
	mu    sync.Mutex
	calls [][]models.Directive
	err   error
}

func (s *recordingSyncer) Sync(ctx context.Context, directives []models.Directive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, directives)
	return nil
}

func (s *recordingSyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordingSyncer) last() []models.Directive {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}
