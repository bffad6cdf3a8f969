package service

import (
	"context"
	"sync"

	"github.com/taskpilot/taskpilot/internal/core/port"
	"go.uber.org/zap"
)

// Handler executes one assignment in-process and returns its result.
type Handler func(ctx context.Context, a port.Assignment) (any, error)

// LocalExecutor runs assignments in goroutines inside the daemon process and
// reports outcomes back through the completion sink. It is the default
// backend and the test double for remote transports.
type LocalExecutor struct {
	handler Handler
	sink    port.CompletionSink
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewLocalExecutor(handler Handler, log *zap.Logger) *LocalExecutor {
	return &LocalExecutor{handler: handler, log: log}
}

// Bind attaches the completion sink. Must be called before Execute; the
// scheduler and executor reference each other, so wiring is two-step.
func (e *LocalExecutor) Bind(sink port.CompletionSink) {
	e.sink = sink
}

// Execute starts the handler asynchronously. The outcome reaches the
// scheduler through the sink exactly once.
func (e *LocalExecutor) Execute(ctx context.Context, a port.Assignment) error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if e.handler == nil {
			e.sink.ReportCompletion(port.Completion{TaskID: a.TaskID, WorkerID: a.WorkerID, Success: true})
			return
		}

		result, err := e.handler(ctx, a)
		if err != nil {
			e.log.Debug("Local handler failed",
				zap.String("task_id", a.TaskID),
				zap.Error(err))
			e.sink.ReportCompletion(port.Completion{
				TaskID:   a.TaskID,
				WorkerID: a.WorkerID,
				Success:  false,
				Error:    err.Error(),
			})
			return
		}
		e.sink.ReportCompletion(port.Completion{
			TaskID:   a.TaskID,
			WorkerID: a.WorkerID,
			Success:  true,
			Result:   result,
		})
	}()
	return nil
}

// Wait blocks until every in-flight handler has reported.
func (e *LocalExecutor) Wait() {
	e.wg.Wait()
}
