package errors

import (
	"errors"
	"maps"
)

// Wrap returns err as the cause of a new *Error. When err already carries
// a path and context they are lifted onto the result, so the outermost
// error still locates the offending value.
func Wrap(err error, errType ErrorType, code, message string) *Error {
	if err == nil {
		return nil
	}
	wrapped := &Error{Type: errType, Code: code, Message: message, Cause: err}
	var inner *Error
	if errors.As(err, &inner) {
		wrapped.Context = inner.Context
		wrapped.Path = inner.Path
	}
	return wrapped
}

func WrapIO(err error, code, message string) *Error {
	return Wrap(err, ErrorTypeIO, code, message)
}

func WrapConfig(err error, code, message string) *Error {
	return Wrap(err, ErrorTypeConfig, code, message)
}

func WrapInternal(err error, code, message string) *Error {
	return Wrap(err, ErrorTypeInternal, code, message)
}

// PrefixPath prepends segment to the Path of the *Error in err's chain.
// Encoders call it while unwinding recursion, so the final error carries
// the full dotted path. Other errors are returned unchanged.
func PrefixPath(err error, segment string) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Path == "" {
			e.Path = segment
		} else {
			e.Path = segment + "." + e.Path
		}
	}
	return err
}

// GetErrorContext flattens err into fields for structured logs and JSON
// reports.
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return map[string]interface{}{"message": err.Error(), "type": "unknown"}
	}

	fields := maps.Clone(e.Context)
	if fields == nil {
		fields = make(map[string]interface{}, 3)
	}
	if e.Path != "" {
		fields["path"] = e.Path
	}
	fields["type"] = string(e.Type)
	fields["code"] = e.Code
	return fields
}
