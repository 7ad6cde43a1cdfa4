package runtime

import (
	"encoding/json"
	"fmt"
	"sync"
)

// AppState is the YAML document standing in for the host application's page
// state. A snapshot is sent with every request and the built-in tools edit it.
type AppState struct {
	mu   sync.RWMutex
	path string
	data map[string]interface{}
}

// LoadAppState reads the document at path. A missing file starts empty; an
// empty path keeps the state in memory only.
func LoadAppState(path string) (*AppState, error) {
	state := &AppState{path: path, data: map[string]interface{}{}}
	if path == "" {
		return state, nil
	}
	data, err := ReadYAMLMap(path)
	if err != nil {
		return nil, fmt.Errorf("load app state: %w", err)
	}
	state.data = data
	return state, nil
}

// NewAppState builds an in-memory state seeded with data.
func NewAppState(data map[string]interface{}) *AppState {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &AppState{data: data}
}

// Path returns the backing file, if any.
func (s *AppState) Path() string { return s.path }

// Snapshot returns a deep copy suitable for JSON encoding.
func (s *AppState) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.data)
}

// Get reads a dotted key.
func (s *AppState) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GetDotted(s.data, key)
}

// Set writes a dotted key and persists the document.
func (s *AppState) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := SetDotted(s.data, key, value); err != nil {
		return err
	}
	return s.saveLocked()
}

// Delete removes a dotted key and persists the document.
func (s *AppState) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !DeleteDotted(s.data, key) {
		return false, nil
	}
	return true, s.saveLocked()
}

// Keys lists leaf keys under prefix.
func (s *AppState) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DottedKeys(s.data, prefix)
}

// Reset clears the document and persists it.
func (s *AppState) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = map[string]interface{}{}
	return s.saveLocked()
}

func (s *AppState) saveLocked() error {
	if s.path == "" {
		return nil
	}
	return WriteYAMLMap(s.path, s.data)
}

func cloneMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// MarshalJSON encodes the current snapshot.
func (s *AppState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
