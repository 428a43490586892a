package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Tables holds the business-constant tables: reward rates per deposit
// category and the withdrawal tier limits. They are static configuration,
// read once at startup; compiled-in defaults apply when no file exists.
type Tables struct {
	RewardRates map[string]decimal.Decimal
	Withdrawal  WithdrawalRules
}

// WithdrawalRules bounds withdrawal requests after the first one.
type WithdrawalRules struct {
	// FirstAmount is the exact amount a user's first-ever withdrawal
	// must carry.
	FirstAmount decimal.Decimal
	// MinAmount is the floor for every later withdrawal.
	MinAmount decimal.Decimal
	// Brackets maps category to its ordered level brackets.
	Brackets map[string][]LevelBracket
}

// LevelBracket caps withdrawals for a contiguous level range.
type LevelBracket struct {
	MinLevel  int
	MaxLevel  int
	MaxAmount decimal.Decimal
}

type rawTables struct {
	RewardRates map[string]string `yaml:"reward_rates"`
	Withdrawal  struct {
		FirstAmount string `yaml:"first_amount"`
		MinAmount   string `yaml:"min_amount"`
		Brackets    map[string][]struct {
			MinLevel  int    `yaml:"min_level"`
			MaxLevel  int    `yaml:"max_level"`
			MaxAmount string `yaml:"max_amount"`
		} `yaml:"brackets"`
	} `yaml:"withdrawal"`
}

// RewardRate returns the reward rate for a deposit category. Unknown or
// empty categories earn no reward.
func (t *Tables) RewardRate(category string) decimal.Decimal {
	if rate, ok := t.RewardRates[category]; ok {
		return rate
	}
	return decimal.Zero
}

// Cap returns the maximum withdrawal amount for a category and level.
// The second return value is false when no bracket covers the pair.
func (r WithdrawalRules) Cap(category string, level int) (decimal.Decimal, bool) {
	brackets, ok := r.Brackets[category]
	if !ok {
		return decimal.Zero, false
	}
	for _, b := range brackets {
		if level >= b.MinLevel && level <= b.MaxLevel {
			return b.MaxAmount, true
		}
	}
	return decimal.Zero, false
}

// DefaultTables returns the compiled-in business constants.
func DefaultTables() *Tables {
	return &Tables{
		RewardRates: map[string]decimal.Decimal{
			"Silver":   decimal.RequireFromString("0.25"),
			"Gold":     decimal.RequireFromString("0.30"),
			"Platinum": decimal.RequireFromString("0.30"),
		},
		Withdrawal: WithdrawalRules{
			FirstAmount: decimal.NewFromInt(1),
			MinAmount:   decimal.NewFromInt(1),
			Brackets: map[string][]LevelBracket{
				"Silver": {
					{MinLevel: 1, MaxLevel: 9, MaxAmount: decimal.NewFromInt(50)},
					{MinLevel: 10, MaxLevel: 49, MaxAmount: decimal.NewFromInt(150)},
					{MinLevel: 50, MaxLevel: 100, MaxAmount: decimal.NewFromInt(500)},
				},
				"Gold": {
					{MinLevel: 1, MaxLevel: 9, MaxAmount: decimal.NewFromInt(100)},
					{MinLevel: 10, MaxLevel: 49, MaxAmount: decimal.NewFromInt(300)},
					{MinLevel: 50, MaxLevel: 100, MaxAmount: decimal.NewFromInt(1000)},
				},
				"Platinum": {
					{MinLevel: 1, MaxLevel: 9, MaxAmount: decimal.NewFromInt(200)},
					{MinLevel: 10, MaxLevel: 49, MaxAmount: decimal.NewFromInt(600)},
					{MinLevel: 50, MaxLevel: 100, MaxAmount: decimal.NewFromInt(2000)},
				},
			},
		},
	}
}

// LoadTables reads the YAML tables file. A missing file yields the
// defaults; a present but malformed file is an error.
func LoadTables(tablesFile string) (*Tables, error) {
	var tablesPath string
	if filepath.IsAbs(tablesFile) {
		tablesPath = tablesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		tablesPath = filepath.Join(wd, tablesFile)
	}

	data, err := os.ReadFile(tablesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTables(), nil
		}
		return nil, fmt.Errorf("unable to read %s: %w", tablesFile, err)
	}

	var raw rawTables
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", tablesFile, err)
	}

	tables := DefaultTables()

	if len(raw.RewardRates) > 0 {
		rates := make(map[string]decimal.Decimal, len(raw.RewardRates))
		for category, rate := range raw.RewardRates {
			parsed, err := decimal.NewFromString(rate)
			if err != nil {
				return nil, fmt.Errorf("invalid reward rate for %s: %q (%w)", category, rate, err)
			}
			rates[category] = parsed
		}
		tables.RewardRates = rates
	}

	if raw.Withdrawal.FirstAmount != "" {
		tables.Withdrawal.FirstAmount, err = decimal.NewFromString(raw.Withdrawal.FirstAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid withdrawal first_amount %q: %w", raw.Withdrawal.FirstAmount, err)
		}
	}

	if raw.Withdrawal.MinAmount != "" {
		tables.Withdrawal.MinAmount, err = decimal.NewFromString(raw.Withdrawal.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid withdrawal min_amount %q: %w", raw.Withdrawal.MinAmount, err)
		}
	}

	if len(raw.Withdrawal.Brackets) > 0 {
		brackets := make(map[string][]LevelBracket, len(raw.Withdrawal.Brackets))
		for category, rawBrackets := range raw.Withdrawal.Brackets {
			for i, rb := range rawBrackets {
				if rb.MinLevel <= 0 || rb.MaxLevel < rb.MinLevel {
					return nil, fmt.Errorf("invalid level bracket %d for %s: min=%d max=%d", i, category, rb.MinLevel, rb.MaxLevel)
				}
				maxAmount, err := decimal.NewFromString(rb.MaxAmount)
				if err != nil {
					return nil, fmt.Errorf("invalid max_amount in bracket %d for %s: %q (%w)", i, category, rb.MaxAmount, err)
				}
				brackets[category] = append(brackets[category], LevelBracket{
					MinLevel:  rb.MinLevel,
					MaxLevel:  rb.MaxLevel,
					MaxAmount: maxAmount,
				})
			}
		}
		tables.Withdrawal.Brackets = brackets
	}

	return tables, nil
}
