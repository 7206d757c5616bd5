package txsubmitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	ledgerclient "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/backend"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
	livetablemetrics "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/metrics"
	nonceledger "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/nonce"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NonceSequencer is the part of the nonce ledger the submitter needs.
type NonceSequencer interface {
	WithSerializedNonce(ctx context.Context, accountKey string, fn nonceledger.NonceFunc) (bool, error)
	SyncFromBackend(ctx context.Context, accountKey string) (uint64, error)
}

// Sender delivers an encoded submission to the ledger.
type Sender interface {
	Submit(ctx context.Context, submission []byte) (ledgerclient.SubmitResult, error)
}

// RejectionClassifier reports whether a rejection was caused by the nonce.
type RejectionClassifier func(ledgerclient.SubmitResult) bool

// Submitter signs, sequences and sends transactions.
type Submitter struct {
	ledger   NonceSequencer
	sender   Sender
	classify RejectionClassifier
	logger   *slog.Logger
	metrics  livetablemetrics.Metrics
	tracer   trace.Tracer
}

func NewSubmitter(
	ledger NonceSequencer,
	sender Sender,
	classify RejectionClassifier,
	logger *slog.Logger,
	metrics livetablemetrics.Metrics,
	tracer trace.Tracer,
) *Submitter {
	if classify == nil {
		classify = ledgerclient.IsNonceRejection
	}
	if metrics == nil {
		metrics = livetablemetrics.NoOpMetrics{}
	}
	return &Submitter{
		ledger:   ledger,
		sender:   sender,
		classify: classify,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// Submit sends instruction under the signer's next nonce. A nonce rejection
// triggers one backend resync and one resubmission. Every other rejection is
// final.
func (s *Submitter) Submit(ctx context.Context, signer *livetabletypes.Signer, instruction []byte) (bool, error) {
	if signer == nil {
		return false, ErrNilSigner
	}
	action := ActionName(instruction)
	ctx, span := s.tracer.Start(ctx, "TransactionSubmitter.Submit",
		trace.WithAttributes(
			attribute.String("action", action),
			attribute.String("account", signer.PublicKeyHex),
		))
	defer span.End()

	logger := s.logger.With(
		slog.String("action", action),
		slog.String("account", signer.PublicKeyHex),
	)

	start := time.Now()
	ok, err := s.ledger.WithSerializedNonce(ctx, signer.PublicKeyHex, func(ctx context.Context, nonce uint64) (bool, error) {
		return s.submitWithRetry(ctx, logger, signer, instruction, nonce)
	})
	s.metrics.RecordSubmitDuration(action, time.Since(start))

	switch {
	case ok:
		s.metrics.RecordSubmission(action, livetablemetrics.OutcomeAccepted)
	case errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded):
		s.metrics.RecordSubmission(action, livetablemetrics.OutcomeTransport)
		logger.Error("Ledger unreachable during submit", slog.Any("error", err))
	default:
		s.metrics.RecordSubmission(action, livetablemetrics.OutcomeRejected)
		logger.Warn("Submission not accepted", slog.Any("error", err))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ok, err
}

// submitWithRetry runs inside the account's nonce ticket.
func (s *Submitter) submitWithRetry(ctx context.Context, logger *slog.Logger, signer *livetabletypes.Signer, instruction []byte, nonce uint64) (bool, error) {
	result, err := s.send(ctx, signer, instruction, nonce)
	if err != nil {
		return false, err
	}
	if result.Accepted {
		return true, nil
	}
	if !s.classify(result) {
		return false, fmt.Errorf("%w: %s", ErrRejected, result.Error)
	}

	s.metrics.RecordNonceResync()
	s.metrics.RecordSubmission(ActionName(instruction), livetablemetrics.OutcomeRetried)
	logger.Info("Nonce rejected, resyncing",
		slog.Uint64("nonce", nonce),
		slog.String("error", result.Error),
	)

	synced, err := s.ledger.SyncFromBackend(ctx, signer.PublicKeyHex)
	if err != nil {
		return false, fmt.Errorf("%w: resync failed: %w", ErrNonceConflict, err)
	}

	result, err = s.send(ctx, signer, instruction, synced)
	if err != nil {
		return false, err
	}
	if result.Accepted {
		return true, nil
	}
	if s.classify(result) {
		return false, fmt.Errorf("%w: %s", ErrNonceConflict, result.Error)
	}
	return false, fmt.Errorf("%w: %s", ErrRejected, result.Error)
}

func (s *Submitter) send(ctx context.Context, signer *livetabletypes.Signer, instruction []byte, nonce uint64) (ledgerclient.SubmitResult, error) {
	tx := txcodec.Sign(signer, nonce, instruction)
	result, err := s.sender.Submit(ctx, txcodec.EncodeSubmission(tx))
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return ledgerclient.SubmitResult{}, err
		}
		return ledgerclient.SubmitResult{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return result, nil
}

// ActionName labels an instruction by its tag.
func ActionName(instruction []byte) string {
	if len(instruction) == 0 {
		return "empty"
	}
	switch instruction[0] {
	case txcodec.TagInit:
		return "init"
	case txcodec.TagOpenRound:
		return "open_round"
	case txcodec.TagSubmitBets:
		return "submit_bets"
	case txcodec.TagLock:
		return "lock"
	case txcodec.TagReveal:
		return "reveal"
	case txcodec.TagSettle:
		return "settle"
	case txcodec.TagFinalize:
		return "finalize"
	}
	return fmt.Sprintf("tag_%d", instruction[0])
}
