package mdg

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/schema"
)

// Generator creates synthetic price ticks: a seeded random walk per symbol,
// emitted round robin.
type Generator struct {
	symbols  []string
	prices   []decimal.Decimal
	step     decimal.Decimal
	floor    decimal.Decimal
	interval time.Duration
	rnd      *rand.Rand
	index    int
	now      time.Time
}

// Config describes a synthetic feed.
type Config struct {
	Symbols   []string
	BasePrice decimal.Decimal
	// Step is the largest absolute move of one tick.
	Step     decimal.Decimal
	Interval time.Duration
	Start    time.Time
	Seed     int64
}

// NewGenerator validates cfg and creates a generator.
func NewGenerator(cfg Config) (*Generator, error) {
	set, err := schema.NewSymbolSet(cfg.Symbols)
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("generator has no symbols")
	}
	if !cfg.BasePrice.IsPositive() {
		return nil, fmt.Errorf("base price must be > 0")
	}
	if cfg.Step.IsNegative() {
		return nil, fmt.Errorf("step must be >= 0")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC()
	}

	names := set.Names()
	prices := make([]decimal.Decimal, len(names))
	for i := range prices {
		prices[i] = cfg.BasePrice
	}
	return &Generator{
		symbols:  names,
		prices:   prices,
		step:     cfg.Step,
		floor:    cfg.BasePrice.Div(decimal.NewFromInt(100)),
		interval: cfg.Interval,
		rnd:      rand.New(rand.NewSource(cfg.Seed)),
		now:      cfg.Start,
	}, nil
}

// Next returns the next tick in sequence. Prices never drop below 1% of the
// base price.
func (g *Generator) Next() schema.Tick {
	i := g.index
	g.index = (g.index + 1) % len(g.symbols)

	move := g.step.Mul(decimal.NewFromFloat(g.rnd.Float64()*2 - 1)).Round(2)
	price := g.prices[i].Add(move)
	if price.LessThan(g.floor) {
		price = g.floor
	}
	g.prices[i] = price

	tick := schema.Tick{Symbol: g.symbols[i], Price: price, Timestamp: g.now}
	g.now = g.now.Add(g.interval)
	return tick
}

// Take returns the next n ticks.
func (g *Generator) Take(n int) []schema.Tick {
	out := make([]schema.Tick, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}
