package ledgerclient

import "errors"

var (
	// ErrTransport covers connection failures, timeouts and 5xx responses.
	ErrTransport = errors.New("ledger transport failure")

	// ErrUnexpectedStatus is returned for status codes the client does not map.
	ErrUnexpectedStatus = errors.New("unexpected ledger status")
)
