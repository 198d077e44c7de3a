// Package budget reads the cost collaborator's state: operator-set limits
// from budget.toml and accumulated spend from spend.json. The coordinator
// only consumes these numbers; it never writes them.
package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hive/pkg/protocol"

	"github.com/pelletier/go-toml/v2"
)

// Files read by the tracker, relative to the hive directory.
const (
	LimitsFile = "budget.toml"
	SpendFile  = "spend.json"
)

// limits is the budget.toml document.
type limits struct {
	DailyLimit   float64 `toml:"daily_limit"`
	MonthlyLimit float64 `toml:"monthly_limit"`
}

// spend is the spend.json document maintained by the cost tracker.
type spend struct {
	DailySpend   float64 `json:"dailySpend"`
	MonthlySpend float64 `json:"monthlySpend"`
}

// Tracker reads budget state from disk on every call. Missing files read
// as zeros; a limit of zero means no limit is enforced.
type Tracker struct {
	limitsPath string
	spendPath  string
}

// NewTracker creates a tracker rooted at hiveDir.
func NewTracker(hiveDir string) *Tracker {
	return &Tracker{
		limitsPath: filepath.Join(hiveDir, LimitsFile),
		spendPath:  filepath.Join(hiveDir, SpendFile),
	}
}

// Status returns the current budget snapshot with the derived
// within-budget flag.
func (t *Tracker) Status() (protocol.BudgetStatus, error) {
	var lim limits
	data, err := os.ReadFile(t.limitsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No limits configured.
	case err != nil:
		return protocol.BudgetStatus{}, fmt.Errorf("read %s: %w", t.limitsPath, err)
	default:
		if err := toml.Unmarshal(data, &lim); err != nil {
			return protocol.BudgetStatus{}, fmt.Errorf("parse %s: %w", t.limitsPath, err)
		}
	}

	var sp spend
	data, err = os.ReadFile(t.spendPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No spend recorded yet.
	case err != nil:
		return protocol.BudgetStatus{}, fmt.Errorf("read %s: %w", t.spendPath, err)
	default:
		if err := json.Unmarshal(data, &sp); err != nil {
			// Corrupt spend file; treat as no spend rather than failing.
			sp = spend{}
		}
	}

	status := protocol.BudgetStatus{
		DailySpend:   sp.DailySpend,
		MonthlySpend: sp.MonthlySpend,
		DailyLimit:   lim.DailyLimit,
		MonthlyLimit: lim.MonthlyLimit,
	}
	status.WithinBudget = withinBudget(status)
	return status, nil
}

func withinBudget(s protocol.BudgetStatus) bool {
	if s.DailyLimit > 0 && s.DailySpend >= s.DailyLimit {
		return false
	}
	if s.MonthlyLimit > 0 && s.MonthlySpend >= s.MonthlyLimit {
		return false
	}
	return true
}
