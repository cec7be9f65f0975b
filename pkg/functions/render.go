package functions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderInContextSchemas renders every in-context function's definition
// as the text block memory.Memory.SystemMessage prepends to the
// in-context function set (spec.md §4.6's "available in-context
// functions" system text). Grounded on llm_os/functions/schema.py's
// generate_schema, which serializes each function's name, docstring,
// and JSON-schema arguments into the system prompt the same way.
func RenderInContextSchemas() string {
	defs := InContextDefinitions()
	if len(defs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available functions:\n")
	for _, def := range defs {
		shown := def.InputSchema
		shown.Properties = WithHeartbeatParam(def.InputSchema.Properties)
		schema, err := json.Marshal(shown)
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&b, "- %s(%s): %s\n", def.Name, schema, def.Description)
	}
	return b.String()
}
