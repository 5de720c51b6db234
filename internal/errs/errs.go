// Package errs defines the error taxonomy shared by the sky simulation
// packages. All three classes are fail-fast contract violations: they are
// returned immediately by the call that detects them and the callee's state
// is left unchanged.
package errs

import "errors"

var (
	// ErrInvalidArgument indicates a value outside its documented range,
	// such as an angle beyond [0, 2*pi] or an opacity outside [0, 1].
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalState indicates an operation on an object or cloud-layer
	// slot before it has been bound, or enabling a control that has no
	// scene attachment.
	ErrIllegalState = errors.New("illegal state")

	// ErrConfigurationOverflow indicates requested object or cloud-layer
	// counts exceeding the largest supported parameter-set shape.
	ErrConfigurationOverflow = errors.New("configuration overflow")
)
