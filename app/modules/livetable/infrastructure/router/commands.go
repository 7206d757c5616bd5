package livetablerouter

import (
	"context"
	"errors"
	"log/slog"

	livetableservice "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/application"
	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/attribute"
)

const commandHandlerName = "livetable.viewer_commands"

// CommandService serves viewer commands.
type CommandService interface {
	Join(ctx context.Context, p livetableservice.Participant) (livetableservice.JoinResult, error)
	Leave(ctx context.Context, sessionID string) error
	PlaceBets(ctx context.Context, sessionID string, bets []livetabletypes.BetInput) (livetabletypes.ConfirmationMessage, error)
}

// Replier pushes a reply to one session.
type Replier interface {
	Push(ctx context.Context, sessionID string, payload any) error
}

// ConfigureCommands registers the viewer command handler on topic.
func (r *LiveTableRouter) ConfigureCommands(topic string, svc CommandService, replier Replier) {
	r.Router.AddNoPublisherHandler(commandHandlerName, topic, r.subscriber, r.HandleCommand(svc, replier))
}

// HandleCommand serves one viewer command. Every outcome is acked: failures
// are reported to the session rather than redelivered.
func (r *LiveTableRouter) HandleCommand(svc CommandService, replier Replier) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ctx, span := r.tracer.Start(msg.Context(), "LiveTableRouter.HandleCommand")
		defer span.End()

		logger := r.logger.With(
			slog.String("message_id", msg.UUID),
			slog.String("correlation_id", msg.Metadata.Get(middleware.CorrelationIDMetadataKey)),
		)

		cmd, err := livetabletypes.DecodeCommand(msg.Payload)
		if err != nil {
			logger.Warn("Dropping invalid viewer command", slog.Any("error", err))
			return nil
		}
		span.SetAttributes(
			attribute.String("command", cmd.Type),
			attribute.String("session_id", cmd.SessionID),
		)

		switch cmd.Type {
		case livetabletypes.CommandJoin:
			r.join(ctx, logger, svc, replier, cmd)
		case livetabletypes.CommandLeave:
			if err := svc.Leave(ctx, cmd.SessionID); err != nil {
				logger.Debug("Leave ignored", slog.String("session_id", cmd.SessionID), slog.Any("error", err))
			}
		case livetabletypes.CommandPlaceBets:
			confirmation, err := svc.PlaceBets(ctx, cmd.SessionID, cmd.Bets)
			if err != nil {
				logger.Debug("Bets refused", slog.String("session_id", cmd.SessionID), slog.Any("error", err))
			}
			r.reply(ctx, logger, replier, cmd.SessionID, confirmation)
		}
		return nil
	}
}

func (r *LiveTableRouter) join(ctx context.Context, logger *slog.Logger, svc CommandService, replier Replier, cmd livetabletypes.Command) {
	p := livetableservice.Participant{SessionID: cmd.SessionID, Balance: cmd.Balance}
	if cmd.SignerSeed != "" {
		signer, err := livetabletypes.SignerFromSeedHex(cmd.SignerSeed)
		if err != nil {
			r.replyError(ctx, logger, replier, cmd.SessionID, "INVALID_SIGNER", err)
			return
		}
		p.Signer = signer
	}

	res, err := svc.Join(ctx, p)
	if err != nil {
		code := ""
		if errors.Is(err, livetableservice.ErrSessionExists) {
			code = "SESSION_EXISTS"
		}
		r.replyError(ctx, logger, replier, cmd.SessionID, code, err)
		return
	}
	r.reply(ctx, logger, replier, res.SessionID, livetabletypes.JoinedMessage{
		Type:      livetabletypes.MessageJoined,
		Game:      livetabletypes.GameCraps,
		SessionID: res.SessionID,
		PublicKey: res.PublicKeyHex,
	})
}

func (r *LiveTableRouter) replyError(ctx context.Context, logger *slog.Logger, replier Replier, sessionID, code string, err error) {
	logger.Debug("Viewer command failed", slog.String("session_id", sessionID), slog.Any("error", err))
	if sessionID == "" {
		return
	}
	r.reply(ctx, logger, replier, sessionID, livetabletypes.ErrorMessage{
		Type:    livetabletypes.MessageError,
		Game:    livetabletypes.GameCraps,
		Code:    code,
		Message: err.Error(),
	})
}

func (r *LiveTableRouter) reply(ctx context.Context, logger *slog.Logger, replier Replier, sessionID string, payload any) {
	if err := replier.Push(ctx, sessionID, payload); err != nil {
		logger.Warn("Failed to reply to viewer", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}
