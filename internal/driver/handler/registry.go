package handler

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/driver/operation"
)

// ExecuteFunc runs one operation against the system under test. It may return a nil result when it has
// nothing to add; timing fields of a returned result are overwritten by the handler.
type ExecuteFunc func(ctx context.Context, op *operation.Operation) (*operation.Result, error)

// Registry maps operation types to the functions that execute them.
type Registry struct {
	clock clock.PassiveClock

	mu       sync.RWMutex
	executes map[operation.Type]ExecuteFunc
}

func NewRegistry(clk clock.PassiveClock) *Registry {
	return &Registry{
		clock:    clk,
		executes: map[operation.Type]ExecuteFunc{},
	}
}

func (r *Registry) Register(typ operation.Type, execute ExecuteFunc) error {
	if execute == nil {
		return errors.Errorf("nil execute function for operation type %s", typ)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executes[typ]; ok {
		return errors.WithStack(&ErrDuplicateOperationType{Type: typ})
	}
	r.executes[typ] = execute
	return nil
}

// Types returns the registered operation types in sorted order.
func (r *Registry) Types() []operation.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := maps.Keys(r.executes)
	slices.Sort(types)
	return types
}

// Lookup returns the execute function registered for typ.
func (r *Registry) Lookup(typ operation.Type) (ExecuteFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	execute, ok := r.executes[typ]
	return execute, ok
}

// NewHandler returns an uninitialized handler bound to the execute function for typ.
func (r *Registry) NewHandler(typ operation.Type) (*OperationHandler, error) {
	execute, ok := r.Lookup(typ)
	if !ok {
		return nil, errors.WithStack(&ErrUnknownOperationType{Type: typ})
	}
	return NewOperationHandler(execute, r.clock), nil
}
