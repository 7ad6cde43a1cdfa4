package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadYAMLMap deserializes a YAML file into a generic map for dotted lookups.
// A missing file yields an empty map.
func ReadYAMLMap(path string) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	bytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(bytes, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}

// WriteYAMLMap persists the map back to YAML, creating directories.
func WriteYAMLMap(path string, data map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	bytes, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bytes, 0o644)
}

// GetDotted traverses a nested map using dotted notation.
func GetDotted(data map[string]interface{}, key string) (interface{}, bool) {
	parts := strings.Split(key, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, ok := m[part]
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}

// SetDotted mutates or creates nested keys referenced via dotted notation. A
// scalar in the way of the path is an error.
func SetDotted(data map[string]interface{}, key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	parts := strings.Split(key, ".")
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	current := data
	for i, part := range parts {
		if i == len(parts)-1 {
			current[part] = value
			return nil
		}
		existing, present := current[part]
		next, ok := existing.(map[string]interface{})
		if !ok {
			if present && existing != nil {
				return fmt.Errorf("%s is not a map", strings.Join(parts[:i+1], "."))
			}
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	return nil
}

// DeleteDotted removes the key and reports whether it existed.
func DeleteDotted(data map[string]interface{}, key string) bool {
	parts := strings.Split(key, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return false
		}
		current = next
	}
	last := parts[len(parts)-1]
	if _, ok := current[last]; !ok {
		return false
	}
	delete(current, last)
	return true
}

// DottedKeys lists every leaf key under prefix in dotted form, sorted.
func DottedKeys(data map[string]interface{}, prefix string) []string {
	var keys []string
	var walk func(m map[string]interface{}, base string)
	walk = func(m map[string]interface{}, base string) {
		for k, v := range m {
			full := k
			if base != "" {
				full = base + "." + k
			}
			if nested, ok := v.(map[string]interface{}); ok && len(nested) > 0 {
				walk(nested, full)
				continue
			}
			keys = append(keys, full)
		}
	}
	walk(data, "")
	if prefix != "" {
		filtered := keys[:0]
		for _, k := range keys {
			if k == prefix || strings.HasPrefix(k, prefix+".") {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}
	sort.Strings(keys)
	return keys
}

// ParseValue attempts to coerce CLI input into bool/int/float before storing.
func ParseValue(input string) interface{} {
	if b, err := strconv.ParseBool(input); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(input, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(input, 64); err == nil {
		return f
	}
	return input
}

// PrettyValue renders nested values in a human-readable one-line format.
func PrettyValue(v interface{}) string {
	switch value := v.(type) {
	case []interface{}:
		var parts []string
		for _, item := range value {
			parts = append(parts, PrettyValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		b, _ := yaml.Marshal(value)
		return strings.TrimSpace(string(b))
	default:
		return fmt.Sprint(value)
	}
}
