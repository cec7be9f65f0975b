// Package strictjson decodes a single JSON object while rejecting
// duplicate keys at every nesting level, matching llm_os/agent.py's
// dict_raise_on_duplicates object_pairs_hook (json.loads applies that
// hook to every object the parser encounters, not just the top level).
// The standard library's encoding/json silently keeps the last value
// for a repeated key; no library in the retrieval pack offers
// duplicate-key rejection, and the fix is a small recursive descent
// built directly on encoding/json.Decoder.Token, so this stays on the
// standard library rather than adding a dependency for a leaf utility.
package strictjson

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrDuplicateKey is returned (wrapped with the offending key) when the
// same key appears twice within one JSON object.
type ErrDuplicateKey struct {
	Key string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate key %q", e.Key)
}

// ErrNotObject is returned when the decoded top-level value is not a
// JSON object.
var ErrNotObject = fmt.Errorf("decoded value is not a JSON object")

// Decode parses s as a single JSON object, rejecting any key that
// appears more than once within the same object at any nesting depth,
// and returns it as a map of decoded values (numbers as float64,
// consistent with plain encoding/json.Unmarshal into interface{}).
func Decode(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return tok, nil
	}
}

func decodeObject(dec *json.Decoder) (map[string]any, error) {
	result := make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("non-string key %v", keyTok)
		}
		if _, exists := result[key]; exists {
			return nil, &ErrDuplicateKey{Key: key}
		}
		value, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", key, err)
		}
		result[key] = value
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return nil, fmt.Errorf("read closing brace: %w", err)
	}
	return result, nil
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	var result []any
	for dec.More() {
		value, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("decode array element: %w", err)
		}
		result = append(result, value)
	}
	if _, err := dec.Token(); err != nil { // consume closing ']'
		return nil, fmt.Errorf("read closing bracket: %w", err)
	}
	return result, nil
}
