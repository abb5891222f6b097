package oops

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
	"github.com/rs/zerolog"
)

type Error struct {
	Message string
	Wrapped error
	Stack   CallStack
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

type CallStack []StackFrame

func (s CallStack) MarshalZerologArray(a *zerolog.Array) {
	for _, frame := range s {
		a.Object(frame)
	}
}

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("file", f.File).
		Int("line", f.Line).
		Str("function", f.Function)
}

// Returns the stack of the innermost *Error in the chain, so that wrapping an
// error a second time doesn't hide where it actually came from. Joined errors
// are searched in order and the first one holding an *Error wins.
var ZerologStackMarshaler = func(err error) interface{} {
	if deepest := innermost(err); deepest != nil {
		return deepest.Stack
	}
	return nil
}

func innermost(err error) *Error {
	var deepest *Error
	for err != nil {
		if asOops, ok := err.(*Error); ok {
			deepest = asOops
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if found := innermost(inner); found != nil {
					return found
				}
			}
			break
		}
		err = errors.Unwrap(err)
	}
	return deepest
}

func New(wrapped error, format string, args ...interface{}) error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Wrapped: wrapped,
		Stack:   trace(1),
	}
}

// Trace captures the caller's stack, for logging things that aren't errors
// (like recovered panics).
func Trace() CallStack {
	return trace(1)
}

func trace(skip int) CallStack {
	calls := stack.Trace().TrimRuntime()
	if len(calls) > skip+1 {
		calls = calls[skip+1:]
	}
	frames := make(CallStack, len(calls))
	for i, call := range calls {
		callFrame := call.Frame()
		frames[i] = StackFrame{
			File:     callFrame.File,
			Line:     callFrame.Line,
			Function: callFrame.Function,
		}
	}
	return frames
}
