package photomet

import (
	"errors"
	"fmt"
)

// Error kinds mirror the precondition taxonomy used throughout the
// measurement kernels. These signal caller misuse; per-source numeric
// failures are reported as result flags instead and never through the
// error return.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrLength           = errors.New("length error")
	ErrDomain           = errors.New("domain error")
	ErrRuntime          = errors.New("runtime error")
	ErrLogic            = errors.New("logic error")
)

func invalidParameterf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidParameter}, args...)...)
}

func lengthErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrLength}, args...)...)
}

func domainErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrDomain}, args...)...)
}

func runtimeErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrRuntime}, args...)...)
}

func logicErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrLogic}, args...)...)
}
