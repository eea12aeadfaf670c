package config

import (
	"ashare-backtester/internal/engine"
	"ashare-backtester/types"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"

	databaseURLEnv = "DATABASE_URL"
)

var ErrInvalid = errors.New("invalid config")

type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// Config is the YAML form of a batch: the data to load, the strategies to
// cross it with and the shared run configuration.
type Config struct {
	Symbols    []string         `yaml:"symbols"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Interval   string           `yaml:"interval"`
	Start      string           `yaml:"start"`
	End        string           `yaml:"end"`

	Data struct {
		Source      string `yaml:"source"`
		Dir         string `yaml:"dir"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"data"`

	Run struct {
		InitialCash    float64 `yaml:"initial_cash"`
		LotSize        int64   `yaml:"lot_size"`
		MinCashReserve float64 `yaml:"min_cash_reserve"`
		SharedCash     bool    `yaml:"shared_cash"`
	} `yaml:"run"`

	Costs struct {
		CommissionRate float64 `yaml:"commission_rate"`
		MinCommission  float64 `yaml:"min_commission"`
		StampDutyRate  float64 `yaml:"stamp_duty_rate"`
		SlippageRate   float64 `yaml:"slippage_rate"`
	} `yaml:"costs"`

	Sizing struct {
		Method string  `yaml:"method"`
		Param  float64 `yaml:"param"`
	} `yaml:"sizing"`

	Workers   int     `yaml:"workers"`
	OutputDir string  `yaml:"output_dir"`
	RiskFree  float64 `yaml:"risk_free"`
}

// LoadConfig reads path, fills defaults and validates. The database URL may
// come from the DATABASE_URL environment variable.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Interval == "" {
		c.Interval = string(types.Day)
	}
	if c.Data.Source == "" {
		c.Data.Source = SourceCSV
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Data.DatabaseURL == "" {
		c.Data.DatabaseURL = os.Getenv(databaseURLEnv)
	}
	if c.Run.LotSize == 0 {
		c.Run.LotSize = engine.DefaultLotSize
	}
	if c.Sizing.Method == "" {
		c.Sizing.Method = string(engine.SizingAllIn)
	}
	if c.OutputDir == "" {
		c.OutputDir = "results"
	}
	for i := range c.Symbols {
		c.Symbols[i] = strings.TrimSpace(c.Symbols[i])
	}
}

func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: symbols cannot be empty", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalid)
		}
		if seen[s] {
			return fmt.Errorf("%w: duplicate symbol %s", ErrInvalid, s)
		}
		seen[s] = true
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("%w: strategies cannot be empty", ErrInvalid)
	}
	if _, err := types.ParseInterval(c.Interval); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	start, end, err := c.Window()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return fmt.Errorf("%w: end %s must be after start %s", ErrInvalid, c.End, c.Start)
	}
	switch c.Data.Source {
	case SourceCSV:
	case SourcePostgres:
		if c.Data.DatabaseURL == "" {
			return fmt.Errorf("%w: postgres source needs data.database_url or %s", ErrInvalid, databaseURLEnv)
		}
	default:
		return fmt.Errorf("%w: data.source must be '%s' or '%s', got '%s'", ErrInvalid, SourceCSV, SourcePostgres, c.Data.Source)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Workers)
	}
	if err := c.RunConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// RunConfig converts the file form into the engine's decimal config.
func (c *Config) RunConfig() engine.RunConfig {
	return engine.RunConfig{
		InitialCash:    decimal.NewFromFloat(c.Run.InitialCash),
		LotSize:        c.Run.LotSize,
		MinCashReserve: decimal.NewFromFloat(c.Run.MinCashReserve),
		Costs: engine.CostConfig{
			CommissionRate: decimal.NewFromFloat(c.Costs.CommissionRate),
			MinCommission:  decimal.NewFromFloat(c.Costs.MinCommission),
			StampDutyRate:  decimal.NewFromFloat(c.Costs.StampDutyRate),
			SlippageRate:   decimal.NewFromFloat(c.Costs.SlippageRate),
		},
		Sizing: engine.SizingConfig{
			Method: engine.SizingMethod(c.Sizing.Method),
			Param:  decimal.NewFromFloat(c.Sizing.Param),
		},
	}
}

// Window returns the parsed start and end dates in market time. An empty
// bound is the zero time.
func (c *Config) Window() (time.Time, time.Time, error) {
	start, err := parseDate(c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start: %v", ErrInvalid, err)
	}
	end, err := parseDate(c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end: %v", ErrInvalid, err)
	}
	return start, end, nil
}

func (c *Config) DataFeed() (engine.DataFeedConfig, error) {
	start, end, err := c.Window()
	if err != nil {
		return engine.DataFeedConfig{}, err
	}
	interval, err := types.ParseInterval(c.Interval)
	if err != nil {
		return engine.DataFeedConfig{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return engine.NewDataFeedConfig(c.Symbols, interval, start, end), nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, s, types.MarketLocation)
}
