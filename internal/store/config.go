package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode        string   `yaml:"mode"` // DRY_RUN keeps the engine from sending real orders
	Exchange    string   `yaml:"exchange"`
	PollSeconds int      `yaml:"poll_seconds"`
	Universe    []string `yaml:"universe"` // approved intraday list, tradingsymbols without -EQ
	Server      struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Qty struct {
		DefaultBuy  int            `yaml:"default_buy"`
		DefaultSell int            `yaml:"default_sell"`
		PerSymbol   map[string]int `yaml:"per_symbol"`
	} `yaml:"qty"`
	Order struct {
		Product   string `yaml:"product"`   // C | I | H
		Retention string `yaml:"retention"` // DAY | IOC
	} `yaml:"order"`
	Candles struct {
		Interval string `yaml:"interval"` // minutes: "1", "5", "15"
		Days     int    `yaml:"days"`
		Limit    int    `yaml:"limit"`
	} `yaml:"candles"`
	MACD struct {
		Fast   int    `yaml:"fast"`
		Slow   int    `yaml:"slow"`
		Signal int    `yaml:"signal"`
		Source string `yaml:"source"`  // close | open | high | low
		MAType string `yaml:"ma_type"` // EMA | SMA
	} `yaml:"macd"`
	SettingsFile string `yaml:"settings_file"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Universe) == 0 {
		return errors.New("universe cannot be empty")
	}
	if c.MACD.Fast <= 0 || c.MACD.Slow <= c.MACD.Fast || c.MACD.Signal <= 0 {
		return fmt.Errorf("macd lengths must satisfy 0 < fast < slow and signal > 0, got %d/%d/%d",
			c.MACD.Fast, c.MACD.Slow, c.MACD.Signal)
	}
	if c.MACD.MAType != "EMA" && c.MACD.MAType != "SMA" {
		return fmt.Errorf("macd.ma_type must be 'EMA' or 'SMA', got '%s'", c.MACD.MAType)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.PollSeconds == 0 {
		c.PollSeconds = 15
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Qty.DefaultBuy == 0 {
		c.Qty.DefaultBuy = 1
	}
	if c.Qty.DefaultSell == 0 {
		c.Qty.DefaultSell = 1
	}
	if c.Order.Product == "" {
		c.Order.Product = "I"
	}
	if c.Order.Retention == "" {
		c.Order.Retention = "DAY"
	}
	if c.Candles.Interval == "" {
		c.Candles.Interval = "5"
	}
	if c.Candles.Days == 0 {
		c.Candles.Days = 1
	}
	if c.MACD.Fast == 0 {
		c.MACD.Fast = 12
	}
	if c.MACD.Slow == 0 {
		c.MACD.Slow = 26
	}
	if c.MACD.Signal == 0 {
		c.MACD.Signal = 9
	}
	if c.MACD.Source == "" {
		c.MACD.Source = "close"
	}
	if c.MACD.MAType == "" {
		c.MACD.MAType = "EMA"
	}
	if c.SettingsFile == "" {
		c.SettingsFile = "dashboard_settings.json"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
