package toolcall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"llmos/pkg/functions"
)

type echoTool struct {
	def  functions.Definition
	ran  map[string]any
	fail bool
}

func (t *echoTool) Name() string                  { return t.def.Name }
func (t *echoTool) Definition() functions.Definition { return t.def }
func (t *echoTool) Exec(_ context.Context, args map[string]any) (any, error) {
	t.ran = args
	if t.fail {
		return nil, errBoom
	}
	return "done", nil
}

var errBoom = errors.New("boom")

func resetRegistry(t *testing.T) {
	t.Helper()
	functions.Reset()
	t.Cleanup(functions.Reset)
}

func registerEcho(t *testing.T, name string, required []string, props map[string]*functions.Property) *echoTool {
	t.Helper()
	tool := &echoTool{def: functions.Definition{
		Name: name,
		InputSchema: functions.InputSchema{Type: "object", Properties: props, Required: required},
	}}
	expected := make([]string, 0, len(props))
	for k := range props {
		expected = append(expected, k)
	}
	functions.Register(functions.SetName("test"), true, tool.def, expected, func(_ *functions.Deps) (functions.Tool, error) {
		return tool, nil
	})
	return tool
}

func TestDispatchRejectsNonObjectShape(t *testing.T) {
	resetRegistry(t)
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, "not an object", State{})
	require.True(t, res.Failed)
	require.True(t, res.Heartbeat)
	require.Contains(t, res.ResponseText, "not an object")
}

func TestDispatchRejectsMissingName(t *testing.T) {
	resetRegistry(t)
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{"arguments": map[string]any{}}, State{})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "Missing 'name'")
}

func TestDispatchEnforcesFirstMessageAllowlist(t *testing.T) {
	resetRegistry(t)
	registerEcho(t, "some_other_tool", nil, map[string]*functions.Property{})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "some_other_tool", "arguments": map[string]any{},
	}, State{IsFirstMessage: true})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "starting message")
}

func TestDispatchEnforcesMemoryWriteGate(t *testing.T) {
	resetRegistry(t)
	registerEcho(t, "send_message", []string{"message"}, map[string]*functions.Property{
		"message": {Type: "string"},
	})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "send_message", "arguments": map[string]any{"message": "hi"},
	}, State{ConsciousMemoryWriteForced: true})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "edit your memory")
}

func TestDispatchMemoryWriteGateSurfacesReason(t *testing.T) {
	resetRegistry(t)
	registerEcho(t, "send_message", []string{"message"}, map[string]*functions.Property{
		"message": {Type: "string"},
	})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "send_message", "arguments": map[string]any{"message": "hi"},
	}, State{ConsciousMemoryWriteForced: true, WriteForcedReason: "a memory pressure warning"})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "a memory pressure warning")
}

func TestDispatchRejectsUnknownFunction(t *testing.T) {
	resetRegistry(t)
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "does_not_exist", "arguments": map[string]any{},
	}, State{})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "does not exist")
}

func TestDispatchRejectsUnknownArgName(t *testing.T) {
	resetRegistry(t)
	registerEcho(t, "tool_a", []string{}, map[string]*functions.Property{"known": {Type: "string"}})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "tool_a", "arguments": map[string]any{"unknown": "x"},
	}, State{})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "does not accept argument \"unknown\"")
}

func TestDispatchRejectsMissingRequiredArg(t *testing.T) {
	resetRegistry(t)
	registerEcho(t, "tool_b", []string{"a", "b"}, map[string]*functions.Property{
		"a": {Type: "string"}, "b": {Type: "string"},
	})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "tool_b", "arguments": map[string]any{"a": "x"},
	}, State{})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "requires at least 2 arguments")
}

func TestDispatchRejectsWrongArgType(t *testing.T) {
	resetRegistry(t)
	registerEcho(t, "tool_c", []string{"n"}, map[string]*functions.Property{"n": {Type: "number"}})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "tool_c", "arguments": map[string]any{"n": "not a number"},
	}, State{})
	require.True(t, res.Failed)
	require.Contains(t, res.ResponseText, "expected type \"number\"")
}

func TestDispatchSuccessStripsHeartbeatAndFormatsOK(t *testing.T) {
	resetRegistry(t)
	tool := registerEcho(t, "tool_d", []string{"x"}, map[string]*functions.Property{"x": {Type: "string"}})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{
		"name":      "tool_d",
		"arguments": map[string]any{"x": "hi", functions.HeartbeatArg: true},
	}, State{})
	require.False(t, res.Failed)
	require.True(t, res.Heartbeat)
	require.Equal(t, "Status: OK. Result: done", res.ResponseText)
	require.NotContains(t, tool.ran, functions.HeartbeatArg)
}

func TestDispatchClearsForcedFlagsOnMemoryEditSuccess(t *testing.T) {
	resetRegistry(t)
	registerEcho(t, "core_memory_append", []string{"content"}, map[string]*functions.Property{
		"content": {Type: "string"},
	})
	p := functions.NewProvider(&functions.Deps{})
	cleared := false
	counter := 3
	res := Dispatch(context.Background(), p, map[string]any{
		"name": "core_memory_append", "arguments": map[string]any{"content": "note"},
	}, State{
		ConsciousMemoryWriteForced: true,
		MessagesSinceLastWrite:     &counter,
		ForcedFlagsClear:           func() { cleared = true },
	})
	require.False(t, res.Failed)
	require.True(t, cleared)
	require.Equal(t, -1, counter)
}

func TestDispatchToolExecErrorFormatsFailedAndForcesHeartbeat(t *testing.T) {
	resetRegistry(t)
	failing := &echoTool{def: functions.Definition{Name: "tool_e", InputSchema: functions.InputSchema{Type: "object", Properties: map[string]*functions.Property{}}}, fail: true}
	functions.Register(functions.SetName("test"), true, failing.def, []string{}, func(_ *functions.Deps) (functions.Tool, error) {
		return failing, nil
	})
	p := functions.NewProvider(&functions.Deps{})
	res := Dispatch(context.Background(), p, map[string]any{"name": "tool_e", "arguments": map[string]any{}}, State{})
	require.True(t, res.Failed)
	require.True(t, res.Heartbeat)
	require.Contains(t, res.ResponseText, "Status: Failed.")
}
