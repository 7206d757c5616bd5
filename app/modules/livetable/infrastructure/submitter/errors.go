package txsubmitter

import (
	"errors"

	ledgerclient "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/backend"
)

var (
	// ErrNonceConflict means the ledger still refused the nonce after one resync.
	ErrNonceConflict = errors.New("nonce conflict")

	// ErrRejected is a terminal rejection of the transaction's content.
	ErrRejected = errors.New("transaction rejected")

	// ErrTransport is the ledger client's transport sentinel.
	ErrTransport = ledgerclient.ErrTransport

	ErrNilSigner = errors.New("submitter: nil signer")
)
