package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/mdg"
	"livetrade/internal/obs"
	"livetrade/internal/ops"
	"livetrade/internal/schema"
	"livetrade/internal/session"
	"livetrade/internal/strategy"
)

func main() {
	symbols := flag.String("symbols", "AAPL,MSFT", "Comma separated symbols")
	strategyID := flag.String("strategy", "sma-crossover", "Built-in strategy ID")
	capital := flag.String("capital", "100000", "Initial capital")
	size := flag.String("size", "100", "Quantity per fill")
	base := flag.String("base", "100", "Starting price of every symbol")
	step := flag.String("step", "0.5", "Largest price move per tick")
	interval := flag.Duration("interval", 200*time.Millisecond, "Delay between ticks")
	count := flag.Int("count", 0, "Stop after this many ticks (0 runs until interrupted)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random walk seed")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := mdg.NewGenerator(mdg.Config{
		Symbols:   strings.Split(*symbols, ","),
		BasePrice: mustDecimal("base", *base),
		Step:      mustDecimal("step", *step),
		Interval:  *interval,
		Seed:      *seed,
	})
	if err != nil {
		log.Fatalf("create generator failed: %v", err)
	}

	repo, err := strategy.NewMemoryRepository(ops.DefaultStrategies()...)
	if err != nil {
		log.Fatalf("create repository failed: %v", err)
	}
	metrics := obs.NewMetrics()
	registry, err := session.NewRegistry(repo, session.Config{
		Sizer:   session.FixedSize(mustDecimal("size", *size)),
		Metrics: metrics,
	})
	if err != nil {
		log.Fatalf("create registry failed: %v", err)
	}

	id, err := registry.StartSession(ctx, session.StartRequest{
		StrategyID:     *strategyID,
		Symbols:        strings.Split(*symbols, ","),
		InitialCapital: mustDecimal("capital", *capital),
		Listener: session.ListenerFuncs{
			Trade: func(t schema.Trade) {
				fmt.Printf("trade %s %s %s@%s realized=%s\n", t.Side, t.Symbol, t.Quantity, t.Price, t.RealizedPnl)
			},
		},
	})
	if err != nil {
		log.Fatalf("start session failed: %v", err)
	}
	log.Printf("paper session %s started, seed=%d", id, *seed)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sent := 0
loop:
	for *count == 0 || sent < *count {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
		tick := gen.Next()
		tick.Timestamp = time.Now().UTC()
		if _, err := registry.ProcessTick(ctx, id, tick); err != nil {
			log.Printf("tick %s %s skipped: %v", tick.Symbol, tick.Price, err)
		}
		sent++
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := registry.StopSession(shutdownCtx, id)
	if err != nil {
		log.Fatalf("stop session failed: %v", err)
	}

	snap := metrics.Snapshot()
	fmt.Printf("ticks=%d trades=%d pnl=%s return=%s%% open=%d unrealized=%s avg_tick=%s\n",
		sent, summary.TotalTrades, summary.TotalPnl, summary.TotalReturnPct.StringFixed(4),
		summary.OpenPositions, summary.UnrealizedPnl, snap.TickLatency.Avg)
}

func mustDecimal(name, raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Fatalf("invalid %s %q: %v", name, raw, err)
	}
	return d
}
