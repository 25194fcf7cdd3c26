package domain

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrNotFound         = Err("not found")
	ErrUnauthorized     = Err("unauthorized")
	ErrInvalidState     = Err("invalid state")
	ErrInvalidInput     = Err("invalid input")
	ErrChainUnavailable = Err("chain unavailable")
	ErrTransactionBuild = Err("transaction build failed")
)
