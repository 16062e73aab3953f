package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Handler processes the payload of tasks enqueued under Name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler decodes the JSON payload into T. The handler is registered
// under the qualified type name of T, the same name Enqueue derives from a
// payload of that type.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var zero T
	return NewNamedTaskHandler(taskName(zero), fn)
}

// NewNamedTaskHandler registers fn under an explicit name, for tasks enqueued
// with WithTaskName.
func NewNamedTaskHandler[T any](name string, fn TaskHandlerFunc[T]) Handler {
	return &typedHandler[T]{name: name, fn: fn}
}

type typedHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *typedHandler[T]) Name() string { return h.name }

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.fn(ctx, v)
}

func taskName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
