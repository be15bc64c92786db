package workload

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ldbc/driver/internal/common/util"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

const (
	ReadOperation   operation.Type = "read"
	WriteOperation  operation.Type = "write"
	DeleteOperation operation.Type = "delete"

	KeyParam   = "key"
	ValueParam = "value"
)

// SyntheticConfig describes a generated key-value workload.
type SyntheticConfig struct {
	// StartTime is the logical timestamp of the first operation.
	StartTime temporal.Time
	// Interval separates the logical timestamps of consecutive operations.
	Interval time.Duration
	// Mix weights operation types; an empty mix generates reads only.
	Mix map[operation.Type]int
	// DependencyRatio is the fraction of operations that depend on earlier ones.
	DependencyRatio float64
	// GctDelta is how far before its own timestamp a dependent operation's dependency time lies.
	GctDelta time.Duration
	// KeySpace is the number of distinct keys operations touch.
	KeySpace int
	Seed     int64
}

func (c SyntheticConfig) validate() error {
	if c.Interval < 0 {
		return errors.Errorf("interval must not be negative, got %s", c.Interval)
	}
	if c.DependencyRatio < 0 || c.DependencyRatio > 1 {
		return errors.Errorf("dependency ratio must be within [0, 1], got %f", c.DependencyRatio)
	}
	if c.GctDelta < 0 {
		return errors.Errorf("gct delta must not be negative, got %s", c.GctDelta)
	}
	for typ, weight := range c.Mix {
		if weight < 0 {
			return errors.Errorf("weight of %s must not be negative, got %d", typ, weight)
		}
	}
	return nil
}

// SyntheticGenerator is an infinite generator of read, write and delete operations over a fixed key
// space. The same config always yields the same sequence.
type SyntheticGenerator struct {
	config      SyntheticConfig
	rand        *rand.Rand
	types       []operation.Type
	cumulative  []int
	totalWeight int
	n           int64
}

func NewSyntheticGenerator(config SyntheticConfig) (*SyntheticGenerator, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.KeySpace <= 0 {
		config.KeySpace = 1000
	}
	mix := config.Mix
	if len(mix) == 0 {
		mix = map[operation.Type]int{ReadOperation: 1}
	}
	types := maps.Keys(mix)
	slices.Sort(types)
	g := &SyntheticGenerator{
		config: config,
		rand:   util.NewThreadsafeRand(config.Seed),
	}
	for _, typ := range types {
		if mix[typ] == 0 {
			continue
		}
		g.totalWeight += mix[typ]
		g.types = append(g.types, typ)
		g.cumulative = append(g.cumulative, g.totalWeight)
	}
	if g.totalWeight == 0 {
		return nil, errors.New("operation mix has no positive weights")
	}
	return g, nil
}

func (g *SyntheticGenerator) Next() (*operation.Operation, error) {
	timestamp := g.config.StartTime.Add(time.Duration(g.n) * g.config.Interval)
	g.n++

	typ := g.pickType()
	key := "key-" + strconv.Itoa(g.rand.Intn(g.config.KeySpace))
	params := map[string]string{KeyParam: key}
	if typ == WriteOperation {
		params[ValueParam] = fmt.Sprintf("value-%d", g.rand.Int63())
	}
	op := operation.New(typ, timestamp, params)
	if g.config.DependencyRatio > 0 && g.rand.Float64() < g.config.DependencyRatio {
		op.WithDependencyTime(timestamp.Add(-g.config.GctDelta))
	}
	return op, nil
}

func (g *SyntheticGenerator) pickType() operation.Type {
	if len(g.types) == 1 {
		return g.types[0]
	}
	r := g.rand.Intn(g.totalWeight)
	i := sort.SearchInts(g.cumulative, r+1)
	return g.types[i]
}
