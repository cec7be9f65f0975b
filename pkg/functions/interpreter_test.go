package functions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetInterpreterRegistryForTest(t *testing.T) {
	t.Helper()
	Reset()
	RegisterBase()
	RegisterInterpreter()
}

type fakeExecutor struct {
	result ExecResult
	err    error
}

func (f fakeExecutor) Run(context.Context, []string, string) (ExecResult, error) {
	return f.result, f.err
}

func TestRunCode_RequiresConfiguredExecutor(t *testing.T) {
	resetInterpreterRegistryForTest(t)
	p := NewProvider(&Deps{})
	_, err := p.Get("run_code")
	require.Error(t, err)
}

func TestRunCode_ReturnsStdout(t *testing.T) {
	resetInterpreterRegistryForTest(t)
	p := NewProvider(&Deps{CodeExecutor: fakeExecutor{result: ExecResult{Stdout: "42\n", ExitCode: 0}}})

	tool, err := p.Get("run_code")
	require.NoError(t, err)
	out, err := tool.Exec(context.Background(), map[string]any{"code": "print(42)"})
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestRunCode_NonZeroExitIsFailure(t *testing.T) {
	resetInterpreterRegistryForTest(t)
	p := NewProvider(&Deps{CodeExecutor: fakeExecutor{result: ExecResult{Stderr: "boom", ExitCode: 1}}})

	tool, err := p.Get("run_code")
	require.NoError(t, err)
	_, err = tool.Exec(context.Background(), map[string]any{"code": "raise Exception()"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRegisterInterpreter_IsIdempotent(t *testing.T) {
	resetInterpreterRegistryForTest(t)
	assert.NotPanics(t, func() { RegisterInterpreter() })
}
