package global

import (
	"golang.org/x/exp/constraints"
)

func IfOr[T any](flag bool, x, y T) T {
	if flag {
		return x
	}

	return y
}

func Max[T constraints.Ordered](args ...T) T {
	var max T
	if len(args) == 0 {
		return max
	}
	max = args[0]
	for _, arg := range args {
		if arg > max {
			max = arg
		}
	}
	return max
}

func Min[T constraints.Ordered](args ...T) T {
	var min T
	if len(args) == 0 {
		return min
	}
	min = args[0]
	for _, arg := range args {
		if arg < min {
			min = arg
		}
	}
	return min
}

type Option[K any] interface {
	apply(opts K)
}

// OptionFunc wraps a function and implements the Option interface.
type OptionFunc[K any] func(K)

// apply calls the wrapped function.
func (fn OptionFunc[K]) apply(opts K) {
	fn(opts)
}

// ApplyOptions applies the provided option values to the option struct.
func ApplyOptions[K any](v K, opts ...Option[K]) {
	for i := range opts {
		opts[i].apply(v)
	}
}
