package interfaces

import (
	"context"
	"time"
)

// Job is a registered job implementation. Implementations self-register
// into the process-wide registry under an opaque class identifier; the
// scheduler looks them up by that identifier at fire time.
type Job interface {
	Execute(ctx context.Context, job *JobContext) error
}

// JobFunc adapts a plain function to the Job interface
type JobFunc func(ctx context.Context, job *JobContext) error

// Execute implements Job
func (f JobFunc) Execute(ctx context.Context, job *JobContext) error {
	return f(ctx, job)
}

// JobContext carries per-fire identity, parameters, and log appenders
// into a job body. The appenders accumulate onto the fire's execution
// log row; faults inside them never abort the job.
type JobContext struct {
	JobID       int64
	JobName     string
	JobGroup    string
	ExecutionID string
	Params      map[string]any
	ParamsJSON  string
	Timeout     time.Duration // Advisory; the core never forcibly aborts

	logFn   func(msg string)
	errorFn func(msg string)
}

// NewJobContext builds a context with the given appenders
func NewJobContext(jobID int64, jobName, jobGroup, executionID string, params map[string]any, paramsJSON string, timeout time.Duration, logFn, errorFn func(string)) *JobContext {
	return &JobContext{
		JobID:       jobID,
		JobName:     jobName,
		JobGroup:    jobGroup,
		ExecutionID: executionID,
		Params:      params,
		ParamsJSON:  paramsJSON,
		Timeout:     timeout,
		logFn:       logFn,
		errorFn:     errorFn,
	}
}

// Log appends a timestamped line to the execution log
func (c *JobContext) Log(msg string) {
	if c.logFn != nil {
		c.logFn(msg)
	}
}

// Error appends a timestamped line to the error accumulator
func (c *JobContext) Error(msg string) {
	if c.errorFn != nil {
		c.errorFn(msg)
	}
}
