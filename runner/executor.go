package runner

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/tool"
)

// callResult is the outcome of one function call.
type callResult struct {
	call   core.FunctionCall
	result any
	err    error
}

// executor runs a batch of function calls with bounded parallelism. Results
// are returned in the order of the calls.
type executor struct {
	maxParallel int
}

func (e *executor) execute(
	newToolContext func(fc core.FunctionCall) *core.ToolContext,
	logger logging.Logger,
	agentName string,
	tools map[string]tool.Tool,
	calls []core.FunctionCall,
) []callResult {
	results := make([]callResult, len(calls))

	n := len(calls)
	if n == 0 {
		return results
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	batchStart := time.Now()

	if maxPar == 1 {
		for i, fc := range calls {
			results[i] = e.executeSingle(newToolContext(fc), logger, agentName, tools, fc)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, maxPar)
		for i, fc := range calls {
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, fc core.FunctionCall) {
				defer wg.Done()
				defer func() { <-sem }()
				results[idx] = e.executeSingle(newToolContext(fc), logger, agentName, tools, fc)
			}(i, fc)
		}
		wg.Wait()
	}

	logger.Debug(
		"runner.functions.batch.complete",
		"agent", agentName,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *executor) executeSingle(toolCtx *core.ToolContext, logger logging.Logger, agentName string, tools map[string]tool.Tool, fc core.FunctionCall) callResult {
	start := time.Now()

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				logger.Error("runner.function.panic", "agent", agentName, "function", fc.Name, "recover", r)
			}
		}()
		if cerr := toolCtx.Context().Err(); cerr != nil {
			err = cerr
			return
		}
		result, err = executeTool(tools, toolCtx, fc.Name, fc.Arguments)
	}()

	logging.LogToolCall(logger, agentName, fc.Name, fc.ID, time.Since(start), err)

	return callResult{call: fc, result: result, err: err}
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeTool looks up a tool and calls it with the decoded arguments.
func executeTool(tools map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := tools[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	return impl.Call(toolCtx, argMap)
}
