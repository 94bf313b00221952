package jobscheduler

import (
	"context"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracingJobScheduler struct {
	base   JobScheduler
	tracer trace.Tracer
}

// NewTracingJobScheduler is a decorator for JobScheduler that creates
// an OpenTelemetry trace span for every invocation of a job. All
// invocations of the same job share a randomly generated job ID, so
// that rescheduled jobs can be correlated.
func NewTracingJobScheduler(base JobScheduler, tracerProvider trace.TracerProvider) JobScheduler {
	return &tracingJobScheduler{
		base:   base,
		tracer: tracerProvider.Tracer("github.com/buildbarn/bb-region-cache/pkg/jobscheduler"),
	}
}

func (js *tracingJobScheduler) EnqueueJob(job Job, name string) {
	jobID := uuid.Must(uuid.NewRandom()).String()
	invocation := 0
	js.base.EnqueueJob(func() JobExitCode {
		// Invocations of the same job never run concurrently,
		// so the counter needs no synchronization.
		invocation++
		_, span := js.tracer.Start(context.Background(), "JobScheduler.RunJob", trace.WithAttributes(
			attribute.String("job.name", name),
			attribute.String("job.id", jobID),
			attribute.Int("job.invocation", invocation),
		))
		defer span.End()

		exitCode := job()
		span.SetAttributes(attribute.String("job.exit_code", exitCode.String()))
		return exitCode
	}, name)
}
