package engine

import (
	"fmt"
	"time"
)

type Rules struct {
	RoundTimeout time.Duration
	Cooldown     time.Duration
	WinScore     int
}

func DefaultRules() Rules {
	return Rules{
		RoundTimeout: 5 * time.Second,
		Cooldown:     2 * time.Second,
		WinScore:     10,
	}
}

func (r Rules) Validate() error {
	switch {
	case r.RoundTimeout <= 0:
		return errInvalidRules("round timeout must be positive")
	case r.Cooldown < 0:
		return errInvalidRules("cooldown must not be negative")
	case r.WinScore < 1:
		return errInvalidRules("win score must be at least 1")
	}
	return nil
}

func errInvalidRules(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRules, reason)
}
