package ratio

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput matches every *InputError
	ErrInvalidInput = errors.New("invalid snapshot pair")
	// ErrArithmeticAnomaly matches every *ArithmeticError
	ErrArithmeticAnomaly = errors.New("arithmetic anomaly")
)

// InputError reports a malformed or incomplete snapshot pair
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidInput, e.Field, e.Reason)
}

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

// ArithmeticError reports a pair whose ratio cannot be represented
type ArithmeticError struct {
	PriceABC float64
	PriceDEF float64
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("%s: ratio %v / %v is not finite", ErrArithmeticAnomaly, e.PriceABC, e.PriceDEF)
}

func (e *ArithmeticError) Is(target error) bool { return target == ErrArithmeticAnomaly }
