package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Settings are the runtime trade controls the dashboard edits. They persist
// across restarts in a small JSON file next to the binary, times as "HH:MM"
// in IST market time.
type Settings struct {
	MasterAuto   bool   `json:"master_auto"`
	AutoBuy      bool   `json:"auto_buy"`
	AutoSell     bool   `json:"auto_sell"`
	TradingStart string `json:"trading_start"`
	TradingEnd   string `json:"trading_end"`
	CutoffTime   string `json:"cutoff_time"`    // no fresh entries after this
	AutoExitTime string `json:"auto_exit_time"` // square off open positions
}

// DefaultSettings mirror the NSE intraday session.
func DefaultSettings() Settings {
	return Settings{
		MasterAuto:   true,
		AutoBuy:      true,
		AutoSell:     true,
		TradingStart: "09:15",
		TradingEnd:   "15:15",
		CutoffTime:   "14:50",
		AutoExitTime: "15:12",
	}
}

// Validate checks every time field parses as HH:MM.
func (s Settings) Validate() error {
	for _, f := range []struct{ name, v string }{
		{"trading_start", s.TradingStart},
		{"trading_end", s.TradingEnd},
		{"cutoff_time", s.CutoffTime},
		{"auto_exit_time", s.AutoExitTime},
	} {
		if _, err := time.Parse("15:04", f.v); err != nil {
			return fmt.Errorf("settings field %s: invalid time %q", f.name, f.v)
		}
	}
	return nil
}

// SettingsStore loads and saves Settings with file persistence.
type SettingsStore struct {
	path string
	mu   sync.Mutex
	cur  Settings
}

func NewSettingsStore(path string) *SettingsStore {
	st := &SettingsStore{path: path, cur: DefaultSettings()}

	b, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return st
	}
	if s.Validate() == nil {
		st.cur = s
	}
	return st
}

// Get returns the current settings snapshot.
func (st *SettingsStore) Get() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cur
}

// Put validates, persists and applies new settings.
func (st *SettingsStore) Put(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(st.path, b, 0o644); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	st.cur = s
	return nil
}
