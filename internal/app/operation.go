package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chunkdb/internal/app")

// Operation tracks one CLI command. Its ID tags every log line of the run and
// its span is the parent of every store query the command issues.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string // "running", "success" or "error"
	StartedAt  time.Time
	Err        error

	span trace.Span
}

// NewOperation creates an operation that has not been started yet.
func NewOperation(name, parameters string, now time.Time) *Operation {
	return &Operation{
		ID:         newOperationID(now),
		Name:       name,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  now.UTC(),
	}
}

// newOperationID is the UTC start time plus a short random suffix, so two
// commands started within the same second still get distinct IDs.
func newOperationID(now time.Time) string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return now.UTC().Format("20060102T150405Z") + "-" + hex.EncodeToString(b[:])
}

// Start opens the operation's span and returns a context carrying it.
func (op *Operation) Start(ctx context.Context) context.Context {
	ctx, op.span = tracer.Start(ctx, "chunkdb."+op.Name,
		trace.WithAttributes(
			attribute.String("chunkdb.operation.id", op.ID),
			attribute.String("chunkdb.operation.parameters", op.Parameters),
		))
	return ctx
}

// Fail marks the operation as failed. The first error wins.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	if op.Err == nil {
		op.Err = err
	}
	op.Status = "error"
}

// Finish records the final status and ends the span. Calling it twice is harmless.
func (op *Operation) Finish() {
	if op.Status == "running" {
		op.Status = "success"
	}
	if op.span == nil {
		return
	}
	if op.Err != nil {
		op.span.RecordError(op.Err)
		op.span.SetStatus(codes.Error, op.Err.Error())
	} else {
		op.span.SetStatus(codes.Ok, "")
	}
	op.span.SetAttributes(attribute.String("chunkdb.operation.status", op.Status))
	op.span.End()
	op.span = nil
}
