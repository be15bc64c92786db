package db

import (
	"context"
	"reflect"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ldbc/driver/internal/driver/handler"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/workload"
)

// ValidationCase is an operation to execute against a database, together with the value its result
// should carry.
type ValidationCase struct {
	Operation *operation.Operation
	Expected  interface{}
	// Adapters that store nothing cannot be expected to return a particular value.
	CheckValue bool
}

// ValidationResult lists the outcome of a validation pass.
type ValidationResult struct {
	Executed int
	Failed   int
}

// keyValueValidationCases round-trips a value through key, checking every step is visible to the next.
func keyValueValidationCases(key string) []ValidationCase {
	params := map[string]string{workload.KeyParam: key}
	withValue := map[string]string{workload.KeyParam: key, workload.ValueParam: "validation-" + key}
	return []ValidationCase{
		{Operation: operation.New(workload.ReadOperation, 0, params), Expected: nil, CheckValue: true},
		{Operation: operation.New(workload.WriteOperation, 1, withValue), Expected: nil, CheckValue: true},
		{Operation: operation.New(workload.ReadOperation, 2, params), Expected: "validation-" + key, CheckValue: true},
		{Operation: operation.New(workload.DeleteOperation, 3, params), Expected: int64(1), CheckValue: true},
		{Operation: operation.New(workload.ReadOperation, 4, params), Expected: nil, CheckValue: true},
	}
}

// Validate executes cases in order through the handlers in registry. It fails if any case errors or
// returns an unexpected value, or if a registered operation type is not covered by any case.
func Validate(ctx context.Context, registry *handler.Registry, cases []ValidationCase) (*ValidationResult, error) {
	var result *multierror.Error
	summary := &ValidationResult{}
	covered := map[operation.Type]bool{}
	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		typ := c.Operation.Type()
		covered[typ] = true
		execute, ok := registry.Lookup(typ)
		if !ok {
			summary.Failed++
			result = multierror.Append(result, errors.Errorf("case %d: no handler registered for %s", i, typ))
			continue
		}
		summary.Executed++
		r, err := execute(ctx, c.Operation)
		if err != nil {
			summary.Failed++
			result = multierror.Append(result, errors.WithMessagef(err, "case %d: %s", i, c.Operation))
			continue
		}
		if !c.CheckValue {
			continue
		}
		var actual interface{}
		if r != nil {
			actual = r.Value
		}
		if !reflect.DeepEqual(actual, c.Expected) {
			summary.Failed++
			result = multierror.Append(result,
				errors.Errorf("case %d: %s returned %v (%T), expected %v (%T)", i, c.Operation, actual, actual, c.Expected, c.Expected))
		}
	}
	for _, typ := range registry.Types() {
		if !covered[typ] {
			result = multierror.Append(result, errors.Errorf("no validation case covers %s", typ))
		}
	}
	return summary, result.ErrorOrNil()
}
