package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// HandlerFunc processes a claimed job. The context is cancelled when
// the liveness watchdog finds the job's lease expired or its lock gone
// (Handle.Touch refreshes the lease); Processor.Stop does not cancel it.
type HandlerFunc func(ctx context.Context, j *Job) error

// Definition describes a registered job name: its handler plus the
// concurrency, lock and priority configuration the processor consults
// during discovery and dispatch.
type Definition struct {
	// Name is the unique identifier for this job type.
	Name string

	// Handler is the function that processes jobs of this name.
	Handler HandlerFunc

	// Opts configures concurrency ceilings, lock lifetime, and priority.
	Opts Options
}

// NewDefinition creates a job definition with default options applied.
func NewDefinition(name string, handler HandlerFunc, opts ...Option) *Definition {
	def := &Definition{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	def.Opts.Priority = ClampPriority(def.Opts.Priority)
	return def
}

// Typed adapts a payload-typed handler into a HandlerFunc by JSON-
// unmarshalling the job's Data into T. This is a package-level generic
// function because Go does not allow generic methods on non-generic
// receiver types.
func Typed[T any](handler func(ctx context.Context, j *Job, payload T) error) HandlerFunc {
	return func(ctx context.Context, j *Job) error {
		var t T
		if len(j.Data) > 0 {
			if err := json.Unmarshal(j.Data, &t); err != nil {
				return fmt.Errorf("unmarshal data for job %q: %w", j.Name, err)
			}
		}
		return handler(ctx, j, t)
	}
}
