// Package contframe is a goroutine-and-channel realization of the
// composable async continuation contract spec.md §4.7 requires ("an
// implementation is free to use any equivalent mechanism"): a value
// representing a composable async operation, with then/loop/do_if/
// on_executor/map_error/start_with/start_by/unpack_variant/unpack_tuple
// operators. Where the original uses compile-time template state chains
// over a boost::asio executor, this uses Go generics over a plain
// function type and a minimal serialized-executor ("strand") built on a
// task channel.
package contframe

import (
	"context"
	"reflect"
)

// Continuation represents a composable asynchronous operation producing
// a T, the Go equivalent of continuation_of_t<T> (continuation_traits.h).
type Continuation[T any] func(ctx context.Context) (T, error)

// StartWith begins a chain with an already-known value.
func StartWith[T any](v T) Continuation[T] {
	return func(context.Context) (T, error) { return v, nil }
}

// StartBy begins a chain with an arbitrary operation.
func StartBy[T any](op func(ctx context.Context) (T, error)) Continuation[T] {
	return Continuation[T](op)
}

// Then applies op to the chain's result, producing a new continuation.
func Then[T, U any](c Continuation[T], op func(ctx context.Context, v T) (U, error)) Continuation[U] {
	return func(ctx context.Context) (U, error) {
		v, err := c(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return op(ctx, v)
	}
}

// MapError routes any error the chain produces through mapErr before it
// continues to propagate, the equivalent of detail/map_error.h.
func MapError[T any](c Continuation[T], mapErr func(error) error) Continuation[T] {
	return func(ctx context.Context) (T, error) {
		v, err := c(ctx)
		if err != nil {
			return v, mapErr(err)
		}
		return v, nil
	}
}

// Loop repeatedly applies gen to the running value while pred holds,
// the equivalent of detail/loop.h.
func Loop[T any](c Continuation[T], pred func(v T) bool, gen func(ctx context.Context, v T) Continuation[T]) Continuation[T] {
	return func(ctx context.Context) (T, error) {
		v, err := c(ctx)
		if err != nil {
			return v, err
		}
		for pred(v) {
			if err := ctx.Err(); err != nil {
				return v, err
			}
			v, err = gen(ctx, v)(ctx)
			if err != nil {
				return v, err
			}
		}
		return v, nil
	}
}

// DoIf branches into thenOp or elseOp based on pred, the equivalent of
// detail/do_if.h.
func DoIf[T any](c Continuation[T], pred func(v T) bool, thenOp, elseOp func(ctx context.Context, v T) Continuation[T]) Continuation[T] {
	return func(ctx context.Context) (T, error) {
		v, err := c(ctx)
		if err != nil {
			return v, err
		}
		if pred(v) {
			return thenOp(ctx, v)(ctx)
		}
		return elseOp(ctx, v)(ctx)
	}
}

// UnpackTuple2 adapts a continuation producing a pair into one operating
// on each element independently, the equivalent of detail/unpack_tuple.h
// (Go has no variadic tuple type, so this is specialized to pairs, the
// only arity the pipeline actually needs).
func UnpackTuple2[A, B, U any](c Continuation[[2]any], op func(ctx context.Context, a A, b B) (U, error)) Continuation[U] {
	return func(ctx context.Context) (U, error) {
		var zero U
		pair, err := c(ctx)
		if err != nil {
			return zero, err
		}
		return op(ctx, pair[0].(A), pair[1].(B))
	}
}

// UnpackVariant dispatches a continuation producing an `any` to the
// handler registered for its dynamic type, the equivalent of
// detail/unpack_variant.h's compile-time alternative dispatch.
func UnpackVariant[U any](c Continuation[any], handlers map[reflect.Type]func(ctx context.Context, v any) (U, error), defaultHandler func(ctx context.Context, v any) (U, error)) Continuation[U] {
	return func(ctx context.Context) (U, error) {
		var zero U
		v, err := c(ctx)
		if err != nil {
			return zero, err
		}
		if h, ok := handlers[reflect.TypeOf(v)]; ok {
			return h(ctx, v)
		}
		return defaultHandler(ctx, v)
	}
}
