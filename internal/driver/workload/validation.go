package workload

import (
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// Violations beyond this many are counted but not listed.
const maxListedViolations = 20

// ValidationResult summarises a pass over a workload.
type ValidationResult struct {
	OperationCount int64
	ViolationCount int64
}

// Validate consumes g, which must be finite, and checks that timestamps never decrease, that every
// dependency time precedes its operation's timestamp, and that handled accepts every operation type.
// The returned error lists the first violations found.
func Validate(g Generator, handled func(operation.Type) bool) (*ValidationResult, error) {
	var violations *multierror.Error
	result := &ValidationResult{}
	violation := func(err error) {
		result.ViolationCount++
		if result.ViolationCount <= maxListedViolations {
			violations = multierror.Append(violations, err)
		}
	}
	unhandled := map[operation.Type]bool{}
	last := temporal.MinTime
	for {
		op, err := g.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, errors.WithMessage(err, "error reading workload")
		}
		result.OperationCount++
		if op.Timestamp() < last {
			violation(errors.Errorf("operation %d (%s) precedes the operation before it at %s", result.OperationCount, op, last))
		}
		last = temporal.Max(last, op.Timestamp())
		if dependency, ok := op.DependencyTime(); ok && dependency >= op.Timestamp() {
			violation(errors.Errorf("operation %d (%s) depends on %s, which is not before it", result.OperationCount, op, dependency))
		}
		if !handled(op.Type()) && !unhandled[op.Type()] {
			unhandled[op.Type()] = true
			violation(errors.Errorf("no handler is registered for operation type %s", op.Type()))
		}
	}
	if result.ViolationCount > maxListedViolations {
		violations = multierror.Append(violations,
			errors.Errorf("%d further violations not listed", result.ViolationCount-maxListedViolations))
	}
	return result, violations.ErrorOrNil()
}
