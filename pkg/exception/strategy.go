package exception

import "fmt"

// Strategy errors
var (
	ErrStrategyNotFound      = fmt.Errorf("strategy: %w", ErrNotFound)
	ErrStrategyInvalid       = fmt.Errorf("strategy: invalid definition: %w", ErrValidation)
	ErrStrategyUnsupported   = fmt.Errorf("strategy: unsupported type: %w", ErrValidation)
	ErrStrategyPanic         = fmt.Errorf("strategy: evaluation panicked: %w", ErrInternal)
	ErrStrategyRepositoryNil = fmt.Errorf("strategy: nil repository: %w", ErrInternal)
)
