package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"livetrade/pkg/exception"
)

// Signal is a strategy decision in response to a tick.
type Signal uint16

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

var signalNames = [...]string{
	SignalHold: "HOLD",
	SignalBuy:  "BUY",
	SignalSell: "SELL",
}

func (s Signal) String() string {
	if int(s) < len(signalNames) {
		return signalNames[s]
	}
	return fmt.Sprintf("Signal(%d)", s)
}

// Valid reports whether s is one of the known signals.
func (s Signal) Valid() bool {
	return int(s) < len(signalNames)
}

// Side returns the trade side for an actionable signal.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	default:
		return SideUnknown, false
	}
}

// ParseSignal converts a case-insensitive name into a Signal.
func ParseSignal(name string) (Signal, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "HOLD", "":
		return SignalHold, nil
	case "BUY":
		return SignalBuy, nil
	case "SELL":
		return SignalSell, nil
	default:
		return SignalHold, fmt.Errorf("%q: %w", name, exception.ErrInvalidSignal)
	}
}

func (s Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSignal(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Side describes trade direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side that reduces a position opened by s.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch strings.ToUpper(name) {
	case "BUY":
		*s = SideBuy
	case "SELL":
		*s = SideSell
	default:
		*s = SideUnknown
	}
	return nil
}

// Status is the lifecycle state of a session.
type Status uint16

const (
	StatusActive Status = iota + 1
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusStopped
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch strings.ToUpper(name) {
	case "ACTIVE":
		*s = StatusActive
	case "STOPPED":
		*s = StatusStopped
	default:
		return fmt.Errorf("unknown status: %s", name)
	}
	return nil
}
