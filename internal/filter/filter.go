// Package filter provides stateless, composable combinators over optional
// values. A filter maps one input to an output that may be absent; absence
// short-circuits through every composition without invoking downstream
// logic. Filters are immutable once built and can be reused across an
// unbounded sequence of inputs.
package filter

// Filter evaluates one input to an optional output.
type Filter[I, O any] func(I) (O, bool)

// Identity starts a chain: the input is always present, unchanged.
func Identity[T any]() Filter[T, T] {
	return func(in T) (T, bool) { return in, true }
}

// Then feeds the output of first into next. An absent intermediate result
// bubbles up without next being invoked.
func Then[I, M, O any](first Filter[I, M], next Filter[M, O]) Filter[I, O] {
	return func(in I) (O, bool) {
		mid, ok := first(in)
		if !ok {
			var zero O
			return zero, false
		}
		return next(mid)
	}
}

// Narrow keeps the value only when it is the union variant R, typed so
// downstream combinators see the narrowed shape.
func Narrow[R any, I, O any](prev Filter[I, O]) Filter[I, R] {
	return Then(prev, func(out O) (R, bool) {
		narrowed, ok := any(out).(R)
		return narrowed, ok
	})
}

// Where keeps the value only when pred holds.
func Where[I, O any](prev Filter[I, O], pred func(O) bool) Filter[I, O] {
	return Then(prev, func(out O) (O, bool) { return out, pred(out) })
}

// Map transforms the value once present.
func Map[I, O, R any](prev Filter[I, O], transform func(O) R) Filter[I, R] {
	return Then(prev, func(out O) (R, bool) { return transform(out), true })
}

// Or evaluates left on the input and, only when its result is absent,
// evaluates right on the same input. First present result wins; results are
// never merged.
func Or[I, O any](left, right Filter[I, O]) Filter[I, O] {
	return func(in I) (O, bool) {
		if out, ok := left(in); ok {
			return out, true
		}
		return right(in)
	}
}
