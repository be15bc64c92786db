package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

type OperationReport struct {
	Type                     operation.Type `json:"type"`
	Count                    int64          `json:"count"`
	MinRunTime               int64          `json:"minRunTime"`
	MaxRunTime               int64          `json:"maxRunTime"`
	MeanRunTime              float64        `json:"meanRunTime"`
	RunTimeStandardDeviation float64        `json:"runTimeStandardDeviation"`
	MaxStartDelay            int64          `json:"maxStartDelay"`
	LateCount                int64          `json:"lateCount"`
}

// Report is the summary of one benchmark run. Durations are expressed in TimeUnit.
type Report struct {
	RunId      string             `json:"runId"`
	StartTime  time.Time          `json:"startTime"`
	FinishTime time.Time          `json:"finishTime"`
	TimeUnit   temporal.TimeUnit  `json:"timeUnit"`
	TotalCount int64              `json:"totalCount"`
	ErrorCount int                `json:"errorCount"`
	Throughput float64            `json:"throughput"`
	Operations []*OperationReport `json:"operations"`
}

type Formatter func(r *Report) ([]byte, error)

func YamlFormatter(r *Report) ([]byte, error) {
	return yaml.Marshal(r)
}

func JsonFormatter(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FormatterFor returns the formatter for "yaml" or "json".
func FormatterFor(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		return YamlFormatter, nil
	case "json":
		return JsonFormatter, nil
	}
	return nil, errors.Errorf("unsupported result format %q", format)
}

func (r *Report) Generate(formatter Formatter) ([]byte, error) {
	if formatter == nil {
		formatter = YamlFormatter
	}
	return formatter(r)
}

// WriteFile writes the report to path in the given format.
func (r *Report) WriteFile(path string, format string) error {
	formatter, err := FormatterFor(format)
	if err != nil {
		return err
	}
	data, err := r.Generate(formatter)
	if err != nil {
		return errors.WithMessage(err, "error formatting result report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "error writing result report to %s", path)
	}
	return nil
}

func (r *Report) Print(out io.Writer) {
	_, _ = fmt.Fprintf(out, "\nBenchmark report %s:\n", r.RunId)
	_, _ = fmt.Fprintf(out, "\toperations: %d, errors: %d, throughput: %.2f ops/s, duration: %s\n",
		r.TotalCount, r.ErrorCount, r.Throughput, r.FinishTime.Sub(r.StartTime))
	_, _ = fmt.Fprintf(out, "\nRun times (%s):\n", strings.ToLower(string(r.TimeUnit)))
	for _, o := range r.Operations {
		_, _ = fmt.Fprintf(out, "\t* %s\n", o.Type)
		_, _ = fmt.Fprintf(out, "\t\t - count: %d\n", o.Count)
		_, _ = fmt.Fprintf(out, "\t\t - min: %d\n", o.MinRunTime)
		_, _ = fmt.Fprintf(out, "\t\t - max: %d\n", o.MaxRunTime)
		_, _ = fmt.Fprintf(out, "\t\t - avg: %f\n", o.MeanRunTime)
		_, _ = fmt.Fprintf(out, "\t\t - standard deviation: %f\n", o.RunTimeStandardDeviation)
		_, _ = fmt.Fprintf(out, "\t\t - max start delay: %d\n", o.MaxStartDelay)
		_, _ = fmt.Fprintf(out, "\t\t - late: %d\n", o.LateCount)
	}
}
