package workload

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// Statistics describes a finite workload.
type Statistics struct {
	OperationCount int64                    `json:"operationCount"`
	DependentCount int64                    `json:"dependentCount"`
	CountByType    map[operation.Type]int64 `json:"countByType"`
	FirstTimestamp temporal.Time            `json:"firstTimestamp"`
	LastTimestamp  temporal.Time            `json:"lastTimestamp"`
}

// CalculateStatistics consumes g, which must be finite.
func CalculateStatistics(g Generator) (*Statistics, error) {
	stats := &Statistics{
		CountByType:    map[operation.Type]int64{},
		FirstTimestamp: temporal.MaxTime,
		LastTimestamp:  temporal.MinTime,
	}
	for {
		op, err := g.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, err
		}
		stats.OperationCount++
		stats.CountByType[op.Type()]++
		if _, ok := op.DependencyTime(); ok {
			stats.DependentCount++
		}
		stats.FirstTimestamp = temporal.Min(stats.FirstTimestamp, op.Timestamp())
		stats.LastTimestamp = temporal.Max(stats.LastTimestamp, op.Timestamp())
	}
}

// Duration is the logical time spanned by the workload.
func (s *Statistics) Duration() time.Duration {
	if s.OperationCount == 0 {
		return 0
	}
	return s.LastTimestamp.Sub(s.FirstTimestamp)
}

func (s *Statistics) Print(out io.Writer) {
	_, _ = fmt.Fprintf(out, "\nWorkload statistics:\n")
	_, _ = fmt.Fprintf(out, "\toperations: %d\n", s.OperationCount)
	_, _ = fmt.Fprintf(out, "\tdependent operations: %d\n", s.DependentCount)
	if s.OperationCount > 0 {
		_, _ = fmt.Fprintf(out, "\tfirst timestamp: %s\n", s.FirstTimestamp)
		_, _ = fmt.Fprintf(out, "\tlast timestamp: %s\n", s.LastTimestamp)
		_, _ = fmt.Fprintf(out, "\tduration: %s\n", s.Duration())
	}
	types := maps.Keys(s.CountByType)
	slices.Sort(types)
	_, _ = fmt.Fprintf(out, "\nOperation mix:\n")
	for _, typ := range types {
		count := s.CountByType[typ]
		_, _ = fmt.Fprintf(out, "\t* %s: %d (%.2f%%)\n", typ, count, 100*float64(count)/float64(s.OperationCount))
	}
}
