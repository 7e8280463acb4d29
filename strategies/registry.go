// Package strategies maps a pool's StrategyKind to its pricing curve.
package strategies

import (
	"fmt"

	"github.com/defistate/defistate-amm/engine"
	"github.com/defistate/defistate-amm/strategies/concentrated"
	"github.com/defistate/defistate-amm/strategies/constantmean"
	"github.com/defistate/defistate-amm/strategies/constantproduct"
	"github.com/defistate/defistate-amm/strategies/hybrid"
	"github.com/defistate/defistate-amm/strategies/stableswap"
)

// Config carries the construction parameters of the configurable curves.
type Config struct {
	ConstantMean constantmean.Weights `mapstructure:"constant-mean" json:"constantMean"`
	Concentrated concentrated.Config  `mapstructure:"concentrated" json:"concentrated"`
	Hybrid       hybrid.Params        `mapstructure:"hybrid" json:"hybrid"`
}

func DefaultConfig() Config {
	return Config{
		ConstantMean: constantmean.DefaultWeights(),
		Concentrated: concentrated.DefaultConfig(),
		Hybrid:       hybrid.DefaultParams(),
	}
}

func (c Config) Validate() error {
	if err := c.ConstantMean.Validate(); err != nil {
		return err
	}
	if err := c.Concentrated.Validate(); err != nil {
		return err
	}
	return c.Hybrid.Validate()
}

// New returns the pricing curve for kind.
func New(kind engine.StrategyKind, cfg Config) (engine.PricingStrategy, error) {
	var (
		strategy engine.PricingStrategy
		err      error
	)
	switch kind {
	case engine.ConstantProduct:
		strategy = constantproduct.New()
	case engine.ConstantMean:
		strategy, err = constantmean.New(cfg.ConstantMean)
	case engine.StableSwap:
		strategy = stableswap.New()
	case engine.ConcentratedLiquidity:
		strategy, err = concentrated.New(cfg.Concentrated)
	case engine.HybridCFMM:
		strategy, err = hybrid.New(cfg.Hybrid)
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownStrategy, kind)
	}
	if err != nil {
		return nil, err
	}
	return strategy, nil
}

// Set holds one constructed curve per kind.
type Set map[engine.StrategyKind]engine.PricingStrategy

// NewSet constructs every supported curve from cfg.
func NewSet(cfg Config) (Set, error) {
	set := make(Set, len(engine.StrategyKinds()))
	for _, kind := range engine.StrategyKinds() {
		s, err := New(kind, cfg)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", kind, err)
		}
		set[kind] = s
	}
	return set, nil
}

// Get returns the curve for kind.
func (s Set) Get(kind engine.StrategyKind) (engine.PricingStrategy, error) {
	strategy, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownStrategy, kind)
	}
	return strategy, nil
}
