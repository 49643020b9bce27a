package exception

import "fmt"

// Session errors
var (
	ErrSessionNotFound     = fmt.Errorf("session: %w", ErrNotFound)
	ErrSessionStopped      = fmt.Errorf("session: stopped: %w", ErrState)
	ErrRegistryClosed      = fmt.Errorf("session: registry closed: %w", ErrState)
	ErrEmptySymbols        = fmt.Errorf("session: symbols are empty: %w", ErrValidation)
	ErrNonPositiveCapital  = fmt.Errorf("session: initial capital must be > 0: %w", ErrValidation)
	ErrSymbolNotMonitored  = fmt.Errorf("session: symbol not monitored: %w", ErrValidation)
	ErrNonPositivePrice    = fmt.Errorf("price must be > 0: %w", ErrValidation)
	ErrNonPositiveQuantity = fmt.Errorf("quantity must be > 0: %w", ErrValidation)
	ErrInvalidSignal       = fmt.Errorf("signal is unknown: %w", ErrValidation)
	ErrInvalidSymbol       = fmt.Errorf("symbol is invalid: %w", ErrValidation)
)
