// Package workload produces the stream of operations a benchmark run executes.
package workload

import (
	"io"

	"github.com/ldbc/driver/internal/driver/operation"
)

// Generator yields operations in non-decreasing timestamp order. Next returns io.EOF once the workload
// is exhausted; infinite generators never do.
type Generator interface {
	Next() (*operation.Operation, error)
}

// GeneratorFunc adapts a function into a Generator.
type GeneratorFunc func() (*operation.Operation, error)

func (f GeneratorFunc) Next() (*operation.Operation, error) {
	return f()
}

type SliceGenerator struct {
	ops []*operation.Operation
	i   int
}

func NewSliceGenerator(ops ...*operation.Operation) *SliceGenerator {
	return &SliceGenerator{ops: ops}
}

func (g *SliceGenerator) Next() (*operation.Operation, error) {
	if g.i >= len(g.ops) {
		return nil, io.EOF
	}
	op := g.ops[g.i]
	g.i++
	return op, nil
}

type limitedGenerator struct {
	source    Generator
	remaining int64
}

// Limit truncates source to at most n operations. A non-positive n leaves source unlimited.
func Limit(source Generator, n int64) Generator {
	if n <= 0 {
		return source
	}
	return &limitedGenerator{source: source, remaining: n}
}

func (g *limitedGenerator) Next() (*operation.Operation, error) {
	if g.remaining <= 0 {
		return nil, io.EOF
	}
	op, err := g.source.Next()
	if err != nil {
		return nil, err
	}
	g.remaining--
	return op, nil
}

// Drain reads every remaining operation from g.
func Drain(g Generator) ([]*operation.Operation, error) {
	var ops []*operation.Operation
	for {
		op, err := g.Next()
		if err == io.EOF {
			return ops, nil
		}
		if err != nil {
			return ops, err
		}
		ops = append(ops, op)
	}
}
