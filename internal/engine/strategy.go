package engine

import (
	"fmt"

	"github.com/roach88/graft/internal/model"
)

// Strategy names.
const (
	StrategyOptimistic = "optimistic"
	StrategyFixedBatch = "fixed-batch"
	StrategyPerUnit    = "per-unit"
)

// StrategyNames lists the accepted strategy names, least conservative first.
var StrategyNames = []string{StrategyOptimistic, StrategyFixedBatch, StrategyPerUnit}

// StrategyData keys.
const (
	dataStrategy  = "strategy"
	dataBatchSize = "batch_size"
)

// Strategy decides how many units to integrate before the next validation.
//
// Strategies hold no batch counter: pickBatch counts from zero on every
// pick, so a switch or a validation needs no reset.
type Strategy interface {
	Name() string
	ShouldValidateNow(integratedSinceLastValidation int) bool
}

// Optimistic validates once, after every remaining unit.
type Optimistic struct{}

func (Optimistic) Name() string               { return StrategyOptimistic }
func (Optimistic) ShouldValidateNow(int) bool { return false }

// FixedBatch validates after every Size units.
type FixedBatch struct {
	Size int
}

func (FixedBatch) Name() string { return StrategyFixedBatch }

func (s FixedBatch) ShouldValidateNow(n int) bool {
	return n >= s.Size
}

// PerUnit validates after every unit.
type PerUnit struct{}

func (PerUnit) Name() string                 { return StrategyPerUnit }
func (PerUnit) ShouldValidateNow(n int) bool { return n >= 1 }

// NewStrategy builds a strategy by name. batchSize is only read for
// fixed-batch.
func NewStrategy(name string, batchSize int) (Strategy, error) {
	switch name {
	case StrategyOptimistic:
		return Optimistic{}, nil
	case StrategyFixedBatch:
		if batchSize < 1 {
			return nil, NewConfigError("fixed-batch needs a batch size of at least 1, got %d", batchSize)
		}
		return FixedBatch{Size: batchSize}, nil
	case StrategyPerUnit:
		return PerUnit{}, nil
	default:
		return nil, NewConfigError("unknown strategy %q (want one of %v)", name, StrategyNames)
	}
}

// MoreConservative returns the next strategy in the chain
// optimistic -> fixed-batch -> per-unit. It reports false for per-unit.
// A batch size below 2 skips fixed-batch, which would behave like per-unit.
func MoreConservative(s Strategy, batchSize int) (Strategy, bool) {
	switch s.(type) {
	case Optimistic:
		if batchSize < 2 {
			return PerUnit{}, true
		}
		return FixedBatch{Size: batchSize}, true
	case FixedBatch:
		return PerUnit{}, true
	default:
		return nil, false
	}
}

// batchSizeOf is the number of units the strategy takes per validation,
// or 0 when it takes them all.
func batchSizeOf(s Strategy) int {
	switch st := s.(type) {
	case FixedBatch:
		return st.Size
	case PerUnit:
		return 1
	default:
		return 0
	}
}

// strategyData records strategy identity in the open state map.
func strategyData(s Strategy) model.Object {
	return model.Object{
		dataStrategy:  model.String(s.Name()),
		dataBatchSize: model.Int(batchSizeOf(s)),
	}
}

// StrategyFromData rebuilds the strategy recorded in a state's StrategyData.
func StrategyFromData(data model.Object) (Strategy, error) {
	name, ok := data.GetString(dataStrategy)
	if !ok {
		return nil, NewConfigError("strategy data has no %q key", dataStrategy)
	}
	n, _ := data.GetInt(dataBatchSize)
	return NewStrategy(name, int(n))
}

// StrategyName returns the strategy recorded in data, or "".
func StrategyName(data model.Object) string {
	name, _ := data.GetString(dataStrategy)
	return name
}

// pickBatch walks eligible units from the frontier and stops as soon as the
// strategy asks for a validation.
func pickBatch(st *State, s Strategy) []int {
	var out []int
	for i := st.Frontier; i < len(st.Units); i++ {
		if !st.Eligible(i) {
			continue
		}
		out = append(out, i)
		if s.ShouldValidateNow(len(out)) {
			break
		}
	}
	return out
}

func describeStrategy(s Strategy) string {
	if n := batchSizeOf(s); n > 1 {
		return fmt.Sprintf("%s(%d)", s.Name(), n)
	}
	return s.Name()
}
