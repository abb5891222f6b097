package utils

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"git.cdm.community/cdm/cdm/src/oops"
)

// Returns the provided value, or a default value if the input was zero.
func OrDefault[T comparable](v T, def T) T {
	var zero T
	if v == zero {
		return def
	} else {
		return v
	}
}

func IntMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func NumPages(numThings, thingsPerPage int) int {
	return IntMax(int(math.Ceil(float64(numThings)/float64(thingsPerPage))), 1)
}

func Ptr[T any](v T) *T {
	return &v
}

func isNil(err error) bool {
	if err == nil {
		return true
	}
	v := reflect.ValueOf(err)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// Must panics if err is non-nil. Typed nil pointers count as nil, so it's
// safe to pass the result of a function returning a concrete error type.
func Must[E error](err E) {
	if !isNil(err) {
		panic(err)
	}
}

func Must1[T any, E error](v T, err E) T {
	Must(err)
	return v
}

/*
Recover a panic and convert it to a returned error. Call it like so:

	func MyFunc() (err error) {
		defer utils.RecoverPanicAsError(&err)
	}

If an error was already present, both it and the panic are kept, joined
together, so errors.Is still finds the original.
*/
func RecoverPanicAsError(err *error) {
	if r := recover(); r != nil {
		var recoveredErr error
		if rerr, ok := r.(error); ok {
			recoveredErr = rerr
		} else {
			recoveredErr = fmt.Errorf("panic with value: %v", r)
		}
		if *err != nil {
			recoveredErr = errors.Join(recoveredErr, *err)
		}
		*err = oops.New(recoveredErr, "panic recovered as error")
	}
}

