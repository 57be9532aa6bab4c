// Package command runs domain operations as observable commands: every run
// is traced, classified, and reported to a notification sink.
package command

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Level is the severity of a notification.
type Level string

// Notification levels.
const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is the outcome of a command as shown to an operator.
type Notification struct {
	Operation string
	Class     Class
	Level     Level
	// Message is safe to show to the operator.
	Message string
	// Detail is the full error text, for logs only.
	Detail   string
	Duration time.Duration
}

// Sink receives notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Fanout sends every notification to each sink in order.
type Fanout []Sink

// Notify implements Sink.
func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, s := range f {
		s.Notify(ctx, n)
	}
}

// Error is a failed command.
type Error struct {
	Operation string
	Class     Class
	Message   string
	Err       error
}

func (e *Error) Error() string {
	return e.Operation + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Runner runs commands.
type Runner struct {
	sink   Sink
	tracer trace.Tracer
	now    func() time.Time
}

// NewRunner creates a Runner. A nil tracer provider disables tracing.
func NewRunner(sink Sink, tp trace.TracerProvider) *Runner {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	if sink == nil {
		sink = Fanout(nil)
	}
	return &Runner{
		sink:   sink,
		tracer: tp.Tracer("github.com/xenking/caja/internal/command"),
		now:    time.Now,
	}
}

// Run runs fn as the command name. A failure is returned as *Error. A
// context that is already done fails the command without calling fn.
func Run[T any](ctx context.Context, r *Runner, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := r.tracer.Start(ctx, "command."+name, trace.WithAttributes(
		attribute.String("command.name", name),
	))
	defer span.End()

	start := r.now()
	var (
		res T
		err error
	)
	if err = ctx.Err(); err == nil {
		res, err = fn(ctx)
	}

	class := Classify(err)
	n := Notification{
		Operation: name,
		Class:     class,
		Level:     LevelInfo,
		Message:   class.Message(),
		Duration:  r.now().Sub(start),
	}
	span.SetAttributes(attribute.String("command.class", string(class)))
	if err != nil {
		n.Level = LevelError
		n.Message = Message(err)
		n.Detail = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(class))
	}
	r.sink.Notify(ctx, n)

	if err != nil {
		var zero T
		return zero, &Error{Operation: name, Class: class, Message: n.Message, Err: err}
	}
	return res, nil
}

// Exec runs fn as the command name when it has no result.
func Exec(ctx context.Context, r *Runner, name string, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, r, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// As returns the *Error in err's chain, classifying err if there is none.
func As(err error) *Error {
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return &Error{Class: Classify(err), Message: Message(err), Err: err}
}
