package risk

import "fmt"

// Settings is the user-adjustable risk profile. It is persisted as a
// single blob and applied to every trade validation.
type Settings struct {
	MaxPositionSize      float64 `json:"max_position_size" yaml:"max_position_size"` // % of balance per trade
	DailyLossLimit       float64 `json:"daily_loss_limit" yaml:"daily_loss_limit"`   // account currency
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	MinConfidence        int     `json:"min_confidence" yaml:"min_confidence"`
	RiskRewardRatio      float64 `json:"risk_reward_ratio" yaml:"risk_reward_ratio"`
	StopLossEnabled      bool    `json:"stop_loss_enabled" yaml:"stop_loss_enabled"`
	TakeProfitEnabled    bool    `json:"take_profit_enabled" yaml:"take_profit_enabled"`
	InitialBalance       float64 `json:"initial_balance" yaml:"initial_balance"`
}

// Validate checks the profile for values the validator cannot work with.
func (s Settings) Validate() error {
	if s.MaxPositionSize <= 0 || s.MaxPositionSize > 100 {
		return fmt.Errorf("risk.max_position_size must be between 0 and 100")
	}
	if s.DailyLossLimit <= 0 {
		return fmt.Errorf("risk.daily_loss_limit must be positive")
	}
	if s.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("risk.max_consecutive_losses must be positive")
	}
	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		return fmt.Errorf("risk.min_confidence must be between 0 and 100")
	}
	if s.InitialBalance <= 0 {
		return fmt.Errorf("risk.initial_balance must be positive")
	}
	return nil
}

func DefaultSettings() Settings {
	return Settings{
		MaxPositionSize:      5,
		DailyLossLimit:       100,
		MaxConsecutiveLosses: 3,
		MinConfidence:        65,
		RiskRewardRatio:      2.0,
		StopLossEnabled:      true,
		TakeProfitEnabled:    true,
		InitialBalance:       1000,
	}
}
