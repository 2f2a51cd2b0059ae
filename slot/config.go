package slot

import "fmt"

// GenerationConfig describes a daily recurrence of slots.
type GenerationConfig struct {
	SlotMinutes int  `json:"slotMinutes"`
	StartHour   int  `json:"startHour"`
	EndHour     int  `json:"endHour"`
	DaysAhead   int  `json:"daysAhead"`
	Regenerate  bool `json:"regenerate"`
}

// ConfigError reports the first invalid field of a GenerationConfig.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func (c GenerationConfig) Validate() error {
	switch c.SlotMinutes {
	case 15, 30, 60:
	default:
		return &ConfigError{Field: "slotMinutes", Reason: "must be one of 15, 30, 60"}
	}
	if c.StartHour < 0 || c.StartHour > 23 {
		return &ConfigError{Field: "startHour", Reason: "must be between 0 and 23"}
	}
	if c.EndHour < 1 || c.EndHour > 24 {
		return &ConfigError{Field: "endHour", Reason: "must be between 1 and 24"}
	}
	if c.EndHour <= c.StartHour {
		return &ConfigError{Field: "endHour", Reason: "must be after startHour"}
	}
	if c.DaysAhead < 1 || c.DaysAhead > 30 {
		return &ConfigError{Field: "daysAhead", Reason: "must be between 1 and 30"}
	}
	return nil
}
