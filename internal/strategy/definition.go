// Package strategy resolves strategy definitions and builds the signal
// evaluators that drive live sessions. Indicator math comes from go-talib.
package strategy

import (
	"strings"
	"time"

	"livetrade/internal/errors"
	"livetrade/pkg/exception"
)

// Type names a family of strategies.
type Type string

const (
	TypeSMA    Type = "SMA"
	TypeMACD   Type = "MACD"
	TypeRSI    Type = "RSI"
	TypeCustom Type = "custom"
)

// Definition is the persisted configuration of a strategy.
type Definition struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Type        Type               `json:"strategy_type"`
	Parameters  map[string]float64 `json:"parameters"`
	Description string             `json:"description,omitempty"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Validate checks the type and that window and period parameters are positive.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.Wrap(exception.ErrStrategyInvalid, "id is empty")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.Wrapf(exception.ErrStrategyInvalid, "strategy %s: name is empty", d.ID)
	}
	switch d.Type {
	case TypeSMA, TypeMACD, TypeRSI, TypeCustom:
	default:
		return errors.Wrapf(exception.ErrStrategyInvalid, "strategy %s: unknown type %q", d.ID, d.Type)
	}
	for key, value := range d.Parameters {
		lower := strings.ToLower(key)
		if (strings.Contains(lower, "window") || strings.Contains(lower, "period")) && value <= 0 {
			return errors.Wrapf(exception.ErrStrategyInvalid, "strategy %s: parameter %s must be > 0, got %v", d.ID, key, value)
		}
	}
	return nil
}

// Param returns a parameter or fallback when it is absent.
func (d Definition) Param(key string, fallback float64) float64 {
	if v, ok := d.Parameters[key]; ok {
		return v
	}
	return fallback
}

// Clone returns a copy that shares no maps with d.
func (d Definition) Clone() Definition {
	out := d
	if d.Parameters != nil {
		out.Parameters = make(map[string]float64, len(d.Parameters))
		for k, v := range d.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}
