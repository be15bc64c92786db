package logging

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const Stacktrace = "stacktrace"

// Unexported but considered part of the stable interface of pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace returns a new logrus.Entry obtained by adding error information and, if available, a stack trace
// as fields to the provided logrus.Entry.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	stack := ExtractStack(err)
	if stack != nil {
		logger = logger.WithField(Stacktrace, fmt.Sprintf("%+v", stack))
	}
	return logger
}

// ExtractStack walks down the chain of wrapped errors and retrieves the first errors.StackTrace it encounters.
// If no stacktraces are found, it returns nil
func ExtractStack(err error) errors.StackTrace {
	var st stackTracer
	if errors.As(err, &st) {
		return st.StackTrace()
	}
	return nil
}

// FormatWithStack renders err followed by the stack trace recorded where it was created, if any.
func FormatWithStack(err error) string {
	if err == nil {
		return ""
	}
	if stack := ExtractStack(err); stack != nil {
		return fmt.Sprintf("%v%+v", err, stack)
	}
	return err.Error()
}
