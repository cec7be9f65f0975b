package functions

import (
	"context"
	"fmt"
)

// SetInterpreter is the out-of-context sandboxed-code-execution function
// set, grounded on llm_os/functions/function_sets/interpreter.py. True
// sandboxing is an external collaborator per spec.md §1 ("the sandboxed
// code executor... interfaces only"); Executor is that contract, reused
// from pkg/exec.Executor so a real sandbox (Docker, gVisor, ...) can be
// dropped in without touching this function set.
const SetInterpreter SetName = "interpreter"

// ExecResult mirrors the fields of exec.Result this tool renders.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor is the sandboxed command-execution contract.
type Executor interface {
	Run(ctx context.Context, cmd []string, workDir string) (ExecResult, error)
}

var initInterpreterOnce bool //nolint:gochecknoglobals // guarded by RegisterInterpreter's idempotency check

// RegisterInterpreter registers the run_code out-of-context function.
// Call once at process startup, before Seal().
func RegisterInterpreter() {
	if initInterpreterOnce {
		return
	}
	initInterpreterOnce = true

	Register(SetInterpreter, false, Definition{
		Name:        "run_code",
		Description: "Execute a short Python snippet in a sandboxed interpreter and return its stdout/stderr.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"code": {Type: "string", Description: "Python source to execute."},
			},
			Required: []string{"code"},
		},
	}, []string{"code"}, newRunCode)
}

type runCodeTool struct{ exec Executor }

func newRunCode(d *Deps) (Tool, error) {
	if d.CodeExecutor == nil {
		return nil, fmt.Errorf("run_code requires a configured code executor")
	}
	return &runCodeTool{exec: d.CodeExecutor}, nil
}
func (t *runCodeTool) Name() string { return "run_code" }
func (t *runCodeTool) Definition() Definition {
	e, _ := Lookup(t.Name())
	return e.Meta
}

func (t *runCodeTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	code, _ := args["code"].(string)
	res, err := t.exec.Run(ctx, []string{"python3", "-c", code}, "")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("exit %d: %s", res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}
