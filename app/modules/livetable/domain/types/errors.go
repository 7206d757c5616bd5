package livetabletypes

import "fmt"

// Validation codes returned to viewers when a bet is refused before submission.
const (
	CodeNotSubscribed       = "NOT_SUBSCRIBED"
	CodeBettingClosed       = "BETTING_CLOSED"
	CodeInvalidBet          = "INVALID_BET"
	CodeInvalidBetAmount    = "INVALID_BET_AMOUNT"
	CodeTargetRequired      = "TARGET_REQUIRED"
	CodeUnsupportedBet      = "UNSUPPORTED_BET"
	CodeTooManyBets         = "TOO_MANY_BETS"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeNoRound             = "NO_ROUND"
)

// BetValidationError is a bet refused locally. No transaction was sent.
type BetValidationError struct {
	Code    string
	Message string
}

func NewBetValidationError(code, message string) *BetValidationError {
	return &BetValidationError{Code: code, Message: message}
}

func (e *BetValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" || e.Message == e.Code {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any BetValidationError with the same code.
func (e *BetValidationError) Is(target error) bool {
	t, ok := target.(*BetValidationError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}
