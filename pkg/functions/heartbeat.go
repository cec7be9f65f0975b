package functions

// HeartbeatArg is the designated boolean argument name that is not part
// of a function's user-visible argument list: if present in an
// arguments object, the dispatcher strips it out before validating the
// declared schema and before calling Exec, then uses its value to
// decide whether to loop. No function set declares it in its own
// InputSchema.Properties — RenderInContextSchemas adds it, via
// WithHeartbeatParam, to the schema shown for every in-context function.
const HeartbeatArg = "request_heartbeat"

// WithHeartbeatParam returns a copy of props that additionally declares
// request_heartbeat, for schemas shown to the model (the schema the
// model sees always offers it; the schema used to validate a tool's
// *business* arguments never includes it, which is what Register
// stores).
func WithHeartbeatParam(props map[string]*Property) map[string]*Property {
	out := make(map[string]*Property, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	out[HeartbeatArg] = &Property{
		Type:        "boolean",
		Description: "Request an immediate follow-up agent step after this function returns.",
	}
	return out
}
