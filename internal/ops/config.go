package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/risk"
	"livetrade/internal/strategy"
	"livetrade/pkg/conn"
)

// Environment overrides applied by ApplyEnv.
const (
	EnvAddr           = "LIVETRADE_ADDR"
	EnvDatabaseURL    = "LIVETRADE_DATABASE_URL"
	EnvPositionSize   = "LIVETRADE_POSITION_SIZE"
	EnvPyroscopeAddr  = "LIVETRADE_PYROSCOPE_ADDR"
	EnvStatusSchedule = "LIVETRADE_STATUS_SCHEDULE"
)

const (
	defaultAddr            = ":8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultNotifyBuffer    = 1024
	defaultStatusSchedule  = "0 */1 * * * *"
	defaultApplicationName = "livetrader"
)

var defaultPositionSize = decimal.NewFromInt(100)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Engine     EngineConfig          `json:"engine"`
	Risk       RiskConfig            `json:"risk"`
	Strategies []strategy.Definition `json:"strategies"`
	Server     ServerConfig          `json:"server"`
	Postgres   PostgresConfig        `json:"postgres"`
	Scheduler  SchedulerConfig       `json:"scheduler"`
	Profiling  ProfilingConfig       `json:"profiling"`
}

// EngineConfig tunes the session registry.
type EngineConfig struct {
	PositionSize    *decimal.Decimal `json:"positionSize"`
	NotifyBuffer    int              `json:"notifyBuffer"`
	LiquidateOnStop bool             `json:"liquidateOnStop"`
}

// RiskConfig is risk.Config with a human readable rate window.
type RiskConfig struct {
	KillSwitch       bool            `json:"killSwitch"`
	MaxOrderQty      decimal.Decimal `json:"maxOrderQty"`
	MaxOrderNotional decimal.Decimal `json:"maxOrderNotional"`
	MaxPosition      decimal.Decimal `json:"maxPosition"`
	OrderRateLimit   int             `json:"orderRateLimit"`
	OrderRateWindow  string          `json:"orderRateWindow"`
}

// ServerConfig describes the control plane listener.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	ReadTimeout    string   `json:"readTimeout"`
	WriteTimeout   string   `json:"writeTimeout"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

// PostgresConfig enables the postgres strategy repository when a host or a
// conn string is set.
type PostgresConfig struct {
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	User            string            `json:"user"`
	Password        string            `json:"password"`
	Database        string            `json:"database"`
	SSLMode         string            `json:"sslMode"`
	Params          map[string]string `json:"params"`
	ConnString      string            `json:"connString"`
	MaxOpenConns    int               `json:"maxOpenConns"`
	MaxIdleConns    int               `json:"maxIdleConns"`
	ConnMaxLifetime string            `json:"connMaxLifetime"`
	Migrate         *bool             `json:"migrate"`
}

// SchedulerConfig controls the periodic status report.
type SchedulerConfig struct {
	Enabled        *bool  `json:"enabled"`
	StatusSchedule string `json:"statusSchedule"`
}

// ProfilingConfig enables continuous profiling when an address is set.
type ProfilingConfig struct {
	PyroscopeAddr   string `json:"pyroscopeAddr"`
	ApplicationName string `json:"applicationName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Engine     EngineSpec
	Risk       risk.Config
	Strategies []strategy.Definition
	Server     ServerSpec
	Postgres   PostgresSpec
	Scheduler  SchedulerSpec
	Profiling  ProfilingSpec
}

// EngineSpec is the resolved registry tuning.
type EngineSpec struct {
	PositionSize    decimal.Decimal
	NotifyBuffer    int
	LiquidateOnStop bool
}

// ServerSpec is the resolved listener config.
type ServerSpec struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// PostgresSpec is the resolved database config.
type PostgresSpec struct {
	Enabled bool
	Migrate bool
	Option  conn.Option
}

// SchedulerSpec is the resolved scheduler config.
type SchedulerSpec struct {
	Enabled        bool
	StatusSchedule string
}

// ProfilingSpec is the resolved profiler config.
type ProfilingSpec struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Parse(data)
}

// Parse resolves a JSON config document.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Default returns the configuration used when no file is given.
func Default() Loaded {
	loaded, _ := Resolve(FileConfig{})
	return loaded
}

// Resolve validates cfg and fills in defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	engine, err := resolveEngine(cfg.Engine)
	if err != nil {
		return Loaded{}, err
	}
	riskCfg, err := resolveRisk(cfg.Risk)
	if err != nil {
		return Loaded{}, err
	}
	strategies, err := resolveStrategies(cfg.Strategies)
	if err != nil {
		return Loaded{}, err
	}
	server, err := resolveServer(cfg.Server)
	if err != nil {
		return Loaded{}, err
	}
	postgres, err := resolvePostgres(cfg.Postgres)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Engine:     engine,
		Risk:       riskCfg,
		Strategies: strategies,
		Server:     server,
		Postgres:   postgres,
		Scheduler:  resolveScheduler(cfg.Scheduler),
		Profiling:  resolveProfiling(cfg.Profiling),
	}, nil
}

// ApplyEnv overrides loaded with the LIVETRADE_* variables found by lookup.
// Pass os.LookupEnv in production.
func ApplyEnv(loaded Loaded, lookup func(string) (string, bool)) (Loaded, error) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		loaded.Server.Addr = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		loaded.Postgres.Enabled = true
		loaded.Postgres.Option.ConnString = v
	}
	if v, ok := lookup(EnvPositionSize); ok && v != "" {
		size, err := decimal.NewFromString(v)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", EnvPositionSize, err)
		}
		if !size.IsPositive() {
			return loaded, fmt.Errorf("%s must be > 0", EnvPositionSize)
		}
		loaded.Engine.PositionSize = size
	}
	if v, ok := lookup(EnvPyroscopeAddr); ok {
		loaded.Profiling.ServerAddress = v
		loaded.Profiling.Enabled = v != ""
	}
	if v, ok := lookup(EnvStatusSchedule); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "":
		case "off", "false", "0":
			loaded.Scheduler.Enabled = false
		default:
			loaded.Scheduler.Enabled = true
			loaded.Scheduler.StatusSchedule = v
		}
	}
	return loaded, nil
}

// DefaultStrategies are served by the in-memory repository when neither the
// config file nor postgres provide any.
func DefaultStrategies() []strategy.Definition {
	return []strategy.Definition{
		{
			ID:          "sma-crossover",
			Name:        "SMA Crossover 10/20",
			Type:        strategy.TypeSMA,
			Parameters:  map[string]float64{"short_window": 10, "long_window": 20},
			Description: "buy when the short SMA crosses above the long SMA",
			IsActive:    true,
		},
		{
			ID:          "rsi-reversal",
			Name:        "RSI 14 30/70",
			Type:        strategy.TypeRSI,
			Parameters:  map[string]float64{"period": 14, "oversold": 30, "overbought": 70},
			Description: "buy on oversold, sell on overbought",
			IsActive:    true,
		},
		{
			ID:          "macd-cross",
			Name:        "MACD 12/26/9",
			Type:        strategy.TypeMACD,
			Parameters:  map[string]float64{"fast_period": 12, "slow_period": 26, "signal_period": 9},
			Description: "trade MACD and signal line crossings",
			IsActive:    true,
		},
	}
}

func resolveEngine(cfg EngineConfig) (EngineSpec, error) {
	spec := EngineSpec{
		PositionSize:    defaultPositionSize,
		NotifyBuffer:    defaultNotifyBuffer,
		LiquidateOnStop: cfg.LiquidateOnStop,
	}
	if cfg.PositionSize != nil {
		if !cfg.PositionSize.IsPositive() {
			return EngineSpec{}, fmt.Errorf("engine positionSize must be > 0")
		}
		spec.PositionSize = *cfg.PositionSize
	}
	if cfg.NotifyBuffer < 0 {
		return EngineSpec{}, fmt.Errorf("engine notifyBuffer must be >= 0")
	}
	if cfg.NotifyBuffer > 0 {
		spec.NotifyBuffer = cfg.NotifyBuffer
	}
	return spec, nil
}

func resolveRisk(cfg RiskConfig) (risk.Config, error) {
	for name, v := range map[string]decimal.Decimal{
		"maxOrderQty":      cfg.MaxOrderQty,
		"maxOrderNotional": cfg.MaxOrderNotional,
		"maxPosition":      cfg.MaxPosition,
	} {
		if v.IsNegative() {
			return risk.Config{}, fmt.Errorf("risk %s must be >= 0", name)
		}
	}
	if cfg.OrderRateLimit < 0 {
		return risk.Config{}, fmt.Errorf("risk orderRateLimit must be >= 0")
	}
	window, err := parseDuration("risk orderRateWindow", cfg.OrderRateWindow, 0)
	if err != nil {
		return risk.Config{}, err
	}
	if cfg.OrderRateLimit > 0 && window == 0 {
		window = time.Second
	}
	return risk.Config{
		KillSwitch:       cfg.KillSwitch,
		MaxOrderQty:      cfg.MaxOrderQty,
		MaxOrderNotional: cfg.MaxOrderNotional,
		MaxPosition:      cfg.MaxPosition,
		OrderRateLimit:   cfg.OrderRateLimit,
		OrderRateWindow:  window,
	}, nil
}

func resolveStrategies(defs []strategy.Definition) ([]strategy.Definition, error) {
	seen := make(map[string]struct{}, len(defs))
	out := make([]strategy.Definition, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[def.ID]; ok {
			return nil, fmt.Errorf("strategy %s is defined twice", def.ID)
		}
		seen[def.ID] = struct{}{}
		out = append(out, def.Clone())
	}
	return out, nil
}

func resolveServer(cfg ServerConfig) (ServerSpec, error) {
	read, err := parseDuration("server readTimeout", cfg.ReadTimeout, defaultReadTimeout)
	if err != nil {
		return ServerSpec{}, err
	}
	write, err := parseDuration("server writeTimeout", cfg.WriteTimeout, defaultWriteTimeout)
	if err != nil {
		return ServerSpec{}, err
	}
	spec := ServerSpec{
		Addr:           cfg.Addr,
		ReadTimeout:    read,
		WriteTimeout:   write,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if spec.Addr == "" {
		spec.Addr = defaultAddr
	}
	if len(spec.AllowedOrigins) == 0 {
		spec.AllowedOrigins = []string{"*"}
	}
	return spec, nil
}

func resolvePostgres(cfg PostgresConfig) (PostgresSpec, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return PostgresSpec{}, fmt.Errorf("postgres port out of range: %d", cfg.Port)
	}
	lifetime, err := parseDuration("postgres connMaxLifetime", cfg.ConnMaxLifetime, 0)
	if err != nil {
		return PostgresSpec{}, err
	}
	spec := PostgresSpec{
		Enabled: cfg.Host != "" || cfg.ConnString != "",
		Migrate: true,
		Option: conn.Option{
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			Database:        cfg.Database,
			SSLMode:         cfg.SSLMode,
			Params:          cfg.Params,
			ConnString:      cfg.ConnString,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: lifetime,
		},
	}
	if cfg.Migrate != nil {
		spec.Migrate = *cfg.Migrate
	}
	return spec, nil
}

func resolveScheduler(cfg SchedulerConfig) SchedulerSpec {
	spec := SchedulerSpec{Enabled: true, StatusSchedule: cfg.StatusSchedule}
	if cfg.Enabled != nil {
		spec.Enabled = *cfg.Enabled
	}
	if spec.StatusSchedule == "" {
		spec.StatusSchedule = defaultStatusSchedule
	}
	return spec
}

func resolveProfiling(cfg ProfilingConfig) ProfilingSpec {
	spec := ProfilingSpec{
		Enabled:         cfg.PyroscopeAddr != "",
		ServerAddress:   cfg.PyroscopeAddr,
		ApplicationName: cfg.ApplicationName,
	}
	if spec.ApplicationName == "" {
		spec.ApplicationName = defaultApplicationName
	}
	return spec
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return d, nil
}
