package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"livetrade/internal/obs"
	"livetrade/internal/ops"
	"livetrade/internal/schema"
	"livetrade/internal/session"
	"livetrade/internal/strategy"
)

func main() {
	file := flag.String("file", "-", "CSV file with symbol,price,timestamp rows (- for stdin)")
	strategyID := flag.String("strategy", "sma-crossover", "Built-in strategy ID")
	capital := flag.String("capital", "100000", "Initial capital")
	size := flag.String("size", "100", "Quantity per fill")
	liquidate := flag.Bool("liquidate", false, "Close open positions at the last price before the summary")
	verbose := flag.Bool("v", false, "Print every tick result")
	flag.Parse()

	in := io.Reader(os.Stdin)
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatalf("open %s failed: %v", *file, err)
		}
		defer f.Close()
		in = f
	}

	ticks, err := readTicks(in)
	if err != nil {
		log.Fatalf("read ticks failed: %v", err)
	}

	initial, err := decimal.NewFromString(*capital)
	if err != nil {
		log.Fatalf("invalid capital: %v", err)
	}
	qty, err := decimal.NewFromString(*size)
	if err != nil {
		log.Fatalf("invalid size: %v", err)
	}

	res, err := replay(context.Background(), replayConfig{
		StrategyID:      *strategyID,
		InitialCapital:  initial,
		PositionSize:    qty,
		LiquidateOnStop: *liquidate,
	}, ticks)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	if *verbose {
		for i, r := range res.Results {
			fmt.Printf("%06d %s %s signal=%s\n", i+1, ticks[i].Symbol, ticks[i].Price, r.Signal)
		}
	}
	for _, trade := range res.Trades {
		fmt.Printf("trade %s %s %s@%s realized=%s at=%s\n",
			trade.Side, trade.Symbol, trade.Quantity, trade.Price, trade.RealizedPnl, trade.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	}
	s := res.Summary
	fmt.Printf("ticks=%d errors=%d trades=%d pnl=%s return=%s%% final=%s open=%d unrealized=%s\n",
		len(ticks), res.TickErrors, s.TotalTrades, s.TotalPnl, s.TotalReturnPct.StringFixed(4), s.FinalCapital, s.OpenPositions, s.UnrealizedPnl)
}

type replayConfig struct {
	StrategyID      string
	InitialCapital  decimal.Decimal
	PositionSize    decimal.Decimal
	LiquidateOnStop bool
}

type replayResult struct {
	Results    []session.TickResult
	Trades     []schema.Trade
	Summary    session.Summary
	TickErrors int
}

// replay runs ticks through one session in file order. Tick errors are
// counted and skipped like a live feed would.
func replay(ctx context.Context, cfg replayConfig, ticks []schema.Tick) (replayResult, error) {
	repo, err := strategy.NewMemoryRepository(ops.DefaultStrategies()...)
	if err != nil {
		return replayResult{}, err
	}

	if !cfg.PositionSize.IsPositive() {
		return replayResult{}, fmt.Errorf("size must be > 0")
	}
	registry, err := session.NewRegistry(repo, session.Config{
		Sizer:   session.FixedSize(cfg.PositionSize),
		Metrics: obs.NewMetrics(),
	})
	if err != nil {
		return replayResult{}, err
	}
	defer registry.Close(ctx)

	id, err := registry.StartSession(ctx, session.StartRequest{
		StrategyID:     cfg.StrategyID,
		Symbols:        symbolsOf(ticks),
		InitialCapital: cfg.InitialCapital,
	})
	if err != nil {
		return replayResult{}, err
	}

	out := replayResult{Results: make([]session.TickResult, 0, len(ticks))}
	for _, tick := range ticks {
		r, err := registry.ProcessTick(ctx, id, tick)
		if err != nil {
			out.TickErrors++
			log.Printf("tick %s %s skipped: %v", tick.Symbol, tick.Price, err)
		}
		out.Results = append(out.Results, r)
	}

	if cfg.LiquidateOnStop {
		if _, err := registry.Liquidate(ctx, id); err != nil {
			return replayResult{}, err
		}
	}

	// the trade log is gone once the session stops
	out.Trades, err = registry.Trades(id)
	if err != nil {
		return replayResult{}, err
	}
	out.Summary, err = registry.StopSession(ctx, id)
	if err != nil {
		return replayResult{}, err
	}
	return out, nil
}

func symbolsOf(ticks []schema.Tick) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range ticks {
		name := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
