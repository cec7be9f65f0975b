// Package toolcall implements the Function Dispatch validation cascade:
// a fixed sequence of checks run against a parsed {name, arguments}
// function call before invocation, each emitting a
// "Status: Failed. Result: …" tool-response record and forcing a
// heartbeat on the first violation. Grounded on llm_os/agent.py's
// __call_function.
package toolcall

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"llmos/pkg/functions"
)

// FirstMessageAllowlist is the set of function names permitted on the
// conversation's first step (spec.md §4.8).
var FirstMessageAllowlist = map[string]bool{
	"send_message":        true,
	"conversation_search":  true,
}

// MemoryEditingFunctions is the set of functions that satisfy a forced
// memory-write gate and, on success, clear the forced-write flags
// (spec.md §4.8).
var MemoryEditingFunctions = map[string]bool{
	"core_memory_append":     true,
	"core_memory_replace":    true,
	"archival_memory_insert": true,
}

// Call is the parsed top-level function_call object.
type Call struct {
	Name      string
	Arguments map[string]any
}

// State is the subset of agent step state Dispatch needs to read and
// mutate: whether a memory write has been forced, and the
// messages-since-last-write counter.
type State struct {
	IsFirstMessage               bool
	ConsciousMemoryWriteForced   bool
	WriteForcedReason            string // human-readable cause of the forced write, e.g. "a memory pressure warning"
	MessagesSinceLastWrite       *int
	ForcedFlagsClear             func() // clears both memory_write_function_forced and conscious_memory_write_already_forced
}

// Result is what Dispatch returns to the Agent Step Loop: the tool
// response text (already formatted "Status: .../Result: ..."), whether
// a heartbeat should follow, and whether the call failed.
type Result struct {
	ResponseText    string
	Heartbeat       bool
	Failed          bool
	RequestHeartbeat bool // the caller-requested heartbeat value on success, for the loop's own bookkeeping
}

func failure(format string, args ...any) Result {
	return Result{ResponseText: "Status: Failed. Result: " + fmt.Sprintf(format, args...), Heartbeat: true, Failed: true}
}

// Dispatch runs the full validation cascade in spec.md §4.8's order and,
// on success, invokes the tool via provider.
func Dispatch(ctx context.Context, provider *functions.Provider, call any, st State) Result {
	// shape
	callMap, ok := call.(map[string]any)
	if !ok {
		return failure("'function_call' field's value is not an object.")
	}

	// name present & string
	rawName, present := callMap["name"]
	if !present {
		return failure("Missing 'name' field of 'function_call' field. You need to add this field for the conversation to proceed!")
	}
	name, ok := rawName.(string)
	if !ok {
		return failure("'name' field's value is not a string.")
	}

	// first-message allowlist
	if st.IsFirstMessage && !FirstMessageAllowlist[name] {
		return failure("Name of function called during starting message of conversation MUST be in %s. Name of function called during starting message of conversation MUST NOT be '%s'",
			quotedSet(FirstMessageAllowlist), name)
	}

	// memory-write gate
	if !st.IsFirstMessage && st.ConsciousMemoryWriteForced && !MemoryEditingFunctions[name] {
		reason := st.WriteForcedReason
		if reason == "" {
			reason = "you needing to edit your memory"
		}
		return failure("Name of function called MUST be in %s due to %s. Name of function called MUST NOT be '%s'",
			quotedSet(MemoryEditingFunctions), reason, name)
	}

	// arguments present & object
	rawArgs, present := callMap["arguments"]
	if !present {
		return failure("Missing 'arguments' field of 'function_call' field. You need to add this field for the conversation to proceed!")
	}
	args, ok := rawArgs.(map[string]any)
	if !ok {
		return failure("'arguments' field's value is not an object.")
	}

	// known function
	entry, ok := functions.Lookup(name)
	if !ok {
		return failure("Function %q does not exist.", name)
	}
	declared := entry.Meta.InputSchema.Properties

	// unknown arg names
	for argName := range args {
		if argName == functions.HeartbeatArg {
			continue
		}
		if _, ok := declared[argName]; !ok {
			return failure("Function %q does not accept argument %q.", name, argName)
		}
	}

	// required args: presence + count bounds, mirroring the original's
	// combined missing-count / superset checks.
	required := entry.Meta.InputSchema.Required
	given := argsExcludingHeartbeat(args)
	if len(given) < len(required) {
		return failure("Function %q requires at least %d arguments (%d given, missing arguments are %s).",
			name, len(required), len(given), missingArgs(required, given))
	}
	if len(given) > len(declared) {
		return failure("Function %q can take at most %d arguments (%d given).", name, len(declared), len(given))
	}
	if !isSubset(required, given) {
		return failure("Function %q requires at least the arguments %s (%s given).",
			name, quotedList(required), quotedList(keysOf(given)))
	}

	// arg types
	for argName, argValue := range given {
		prop := declared[argName]
		if msg, bad := typeMismatch(name, argName, prop, argValue); bad {
			return failure("%s", msg)
		}
	}

	// request_heartbeat extraction
	heartbeatRequested := false
	if raw, ok := args[functions.HeartbeatArg]; ok {
		b, ok := raw.(bool)
		if !ok {
			return failure("'%s' field's value is not a boolean.", functions.HeartbeatArg)
		}
		heartbeatRequested = b
		if st.IsFirstMessage && !heartbeatRequested && name != "send_message" {
			return failure("Function called during starting message of conversation MUST request a heartbeat through \"'request_heartbeat': true\" IF the function name is not 'send_message'.")
		}
		delete(args, functions.HeartbeatArg)
	}

	tool, err := provider.Get(name)
	if err != nil {
		return failure("%s", err)
	}
	res, err := tool.Exec(ctx, args)
	if err != nil {
		return Result{ResponseText: "Status: Failed. Result: " + err.Error() + " Please try again without acknowledging this message.", Heartbeat: true, Failed: true}
	}

	if MemoryEditingFunctions[name] {
		if st.MessagesSinceLastWrite != nil {
			*st.MessagesSinceLastWrite = -1
		}
		if st.ForcedFlagsClear != nil {
			st.ForcedFlagsClear()
		}
	}

	return Result{
		ResponseText:     fmt.Sprintf("Status: OK. Result: %v", res),
		Heartbeat:        heartbeatRequested,
		Failed:           false,
		RequestHeartbeat: heartbeatRequested,
	}
}

func argsExcludingHeartbeat(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k == functions.HeartbeatArg {
			continue
		}
		out[k] = v
	}
	return out
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isSubset(required []string, given map[string]any) bool {
	for _, r := range required {
		if _, ok := given[r]; !ok {
			return false
		}
	}
	return true
}

func missingArgs(required []string, given map[string]any) string {
	var missing []string
	for _, r := range required {
		if _, ok := given[r]; !ok {
			missing = append(missing, r)
		}
	}
	sort.Strings(missing)
	return "[" + strings.Join(missing, ", ") + "]"
}

func quotedList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return strings.Join(quoted, ",")
}

func quotedSet(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return quotedList(names)
}

// typeMismatch checks argValue against prop's declared JSON-schema type,
// validating element type when prop is an array (spec.md §4.8).
func typeMismatch(fnName, argName string, prop *functions.Property, argValue any) (string, bool) {
	if prop == nil {
		return "", false
	}
	actual, isArray := jsonType(argValue)
	if prop.Type == "array" {
		if !isArray {
			return fmt.Sprintf("Function %q does not accept argument %q of type %q (expected type \"array\").", fnName, argName, actual), true
		}
		elems, _ := argValue.([]any)
		for _, e := range elems {
			elemType, elemIsArray := jsonType(e)
			if elemIsArray || (prop.Items != nil && elemType != prop.Items.Type) {
				return fmt.Sprintf("Function %q does not accept argument %q of type \"array\" (some or all elements are not of type %s).", fnName, argName, prop.Items.Type), true
			}
		}
		return "", false
	}
	if isArray {
		return fmt.Sprintf("Function %q does not accept argument %q of type \"array\" (expected type %q).", fnName, argName, prop.Type), true
	}
	if actual != prop.Type {
		return fmt.Sprintf("Function %q does not accept argument %q of type %q (expected type %q).", fnName, argName, actual, prop.Type), true
	}
	return "", false
}

// jsonType maps a decoded-JSON Go value to its JSON Schema type name.
func jsonType(v any) (name string, isArray bool) {
	switch v.(type) {
	case string:
		return "string", false
	case bool:
		return "boolean", false
	case float64:
		return "number", false
	case []any:
		return "array", true
	case map[string]any:
		return "object", false
	case nil:
		return "null", false
	default:
		return fmt.Sprintf("%T", v), false
	}
}
