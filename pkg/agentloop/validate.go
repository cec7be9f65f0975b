package agentloop

import "fmt"

// requiredTopLevelKeys is the fixed structured-output schema's top
// level, verbatim from spec.md §4.7 step 5 /
// llm_os/agent.py's __handle_emotions / __handle_thoughts callers.
var requiredTopLevelKeys = []string{"emotions", "thoughts", "function_call"}

// validateTopLevelKeys checks parsed has exactly {emotions, thoughts,
// function_call}, each present and non-nil. Unknown keys and missing
// keys both fail.
func validateTopLevelKeys(parsed map[string]any) error {
	allowed := make(map[string]bool, len(requiredTopLevelKeys))
	for _, k := range requiredTopLevelKeys {
		allowed[k] = true
	}
	for k := range parsed {
		if !allowed[k] {
			return fmt.Errorf("response contains unexpected top-level key %q. Response MUST only contain the keys %v.", k, requiredTopLevelKeys)
		}
	}
	for _, k := range requiredTopLevelKeys {
		v, ok := parsed[k]
		if !ok || v == nil {
			return fmt.Errorf("response is missing required top-level key %q. Response MUST contain the keys %v.", k, requiredTopLevelKeys)
		}
	}
	return nil
}

// emotion is one validated (label, intensity) pair.
type emotion struct {
	Label     string
	Intensity float64
}

// validateEmotions checks raw is a list of 2-element (string, number in
// [1,10]) pairs, per spec.md §4.7 step 6 / __handle_emotions.
func validateEmotions(raw any) ([]emotion, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("'emotions' field's value is not a list.")
	}
	out := make([]emotion, 0, len(list))
	for i, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("'emotions' field's entry at index %d is not a 2-element [label, intensity] pair.", i)
		}
		label, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("'emotions' field's entry at index %d has a non-string label.", i)
		}
		intensity, ok := pair[1].(float64)
		if !ok {
			return nil, fmt.Errorf("'emotions' field's entry at index %d has a non-numeric intensity.", i)
		}
		if intensity < 1.0 || intensity > 10.0 {
			return nil, fmt.Errorf("'emotions' field's entry at index %d has an intensity of %v, which is outside the allowed range of 1 to 10.", i, intensity)
		}
		out = append(out, emotion{Label: label, Intensity: intensity})
	}
	return out, nil
}

// validateThoughts checks raw is a list of strings, per spec.md §4.7
// step 7 / __handle_thoughts.
func validateThoughts(raw any) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("'thoughts' field's value is not a list.")
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("'thoughts' field's entry at index %d is not a string.", i)
		}
		out = append(out, s)
	}
	return out, nil
}
