package contframe

import (
	"context"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThenChainsValues(t *testing.T) {
	c := Then(StartWith(2), func(ctx context.Context, v int) (int, error) {
		return v * 3, nil
	})
	v, err := c(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestThenShortCircuitsOnError(t *testing.T) {
	boom := errors.New("boom")
	c := StartBy(func(context.Context) (int, error) { return 0, boom })
	c2 := Then(c, func(context.Context, int) (int, error) {
		t.Fatal("must not run after an error")
		return 0, nil
	})
	_, err := c2(context.Background())
	assert.Equal(t, boom, err)
}

func TestMapErrorTranslates(t *testing.T) {
	inner := errors.New("inner")
	wrapped := errors.New("wrapped")
	c := StartBy(func(context.Context) (int, error) { return 0, inner })
	c = MapError(c, func(error) error { return wrapped })
	_, err := c(context.Background())
	assert.Equal(t, wrapped, err)
}

func TestLoopAccumulatesUntilPredicateFails(t *testing.T) {
	c := Loop(StartWith(0),
		func(v int) bool { return v < 5 },
		func(ctx context.Context, v int) Continuation[int] {
			return StartWith(v + 1)
		})
	v, err := c(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestDoIfBranches(t *testing.T) {
	branch := func(tag string) func(context.Context, int) Continuation[int] {
		return func(context.Context, int) Continuation[int] {
			return StartWith(len(tag))
		}
	}
	c := DoIf(StartWith(10),
		func(v int) bool { return v > 5 },
		branch("big"), branch("small"))
	v, err := c(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestOnExecutorSerializesOntoStrand(t *testing.T) {
	strand := NewStrand()
	defer strand.Close()

	c := OnExecutor(StartWith(42), strand, Post)
	v, err := c(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestUnpackTuple2SplitsPair(t *testing.T) {
	c := StartWith([2]any{3, "x"})
	u := UnpackTuple2[int, string](c, func(ctx context.Context, a int, b string) (string, error) {
		return b + string(rune('0'+a)), nil
	})
	v, err := u(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x3", v)
}

func TestUnpackVariantDispatchesByType(t *testing.T) {
	handlers := map[reflect.Type]func(context.Context, any) (string, error){
		reflect.TypeOf(0): func(context.Context, any) (string, error) { return "int", nil },
	}
	fallback := func(context.Context, any) (string, error) { return "other", nil }

	c := UnpackVariant(StartWith[any](7), handlers, fallback)
	v, err := c(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "int", v)

	c2 := UnpackVariant(StartWith[any]("s"), handlers, fallback)
	v2, err := c2(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other", v2)
}
