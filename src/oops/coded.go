package oops

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how callers should react to them. The HTTP layer
// maps kinds to status codes; everything else just compares codes.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindGone
	KindPermissionDenied
	KindFlooding
	KindMisconfigured
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindGone:
		return "gone"
	case KindPermissionDenied:
		return "permission_denied"
	case KindFlooding:
		return "flooding"
	case KindMisconfigured:
		return "misconfigured"
	case KindTransient:
		return "transient"
	}
	return "internal"
}

// Coded is an error with a stable identifying code. Packages declare their
// coded errors as package-level values and callers compare with errors.Is.
type Coded struct {
	Code string
	Kind Kind
	Msg  string
}

func NewCoded(kind Kind, code string, msg string) *Coded {
	return &Coded{Code: code, Kind: kind, Msg: msg}
}

func (e *Coded) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is matches any Coded error with the same code, so a coded error that was
// rebuilt with a different message still matches its sentinel.
func (e *Coded) Is(target error) bool {
	other, ok := target.(*Coded)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// Coder is implemented by error types that carry their own data but still
// report a stable code, like anti-flood rejections.
type Coder interface {
	ErrorCode() string
	ErrorKind() Kind
}

func (e *Coded) ErrorCode() string { return e.Code }
func (e *Coded) ErrorKind() Kind   { return e.Kind }

// CodeOf returns the code of the first coded error in err's chain, or "" if
// there is none.
func CodeOf(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// KindOf returns the kind of the first coded error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	return KindInternal
}
