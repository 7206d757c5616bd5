package livetabletypes

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Viewer command types accepted on the command subject.
const (
	CommandJoin      = "join"
	CommandLeave     = "leave"
	CommandPlaceBets = "place_bets"

	MessageJoined = "live_table_joined"
	MessageError  = "live_table_error"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is a viewer request relayed by the transport layer.
type Command struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	// SignerSeed is an optional hex ed25519 seed; the gateway generates a key
	// when it is empty.
	SignerSeed string     `json:"signerSeed,omitempty"`
	Balance    *uint64    `json:"balance,omitempty"`
	Bets       []BetInput `json:"bets,omitempty"`
}

// JoinedMessage acknowledges a join.
type JoinedMessage struct {
	Type      string `json:"type"`
	Game      string `json:"game"`
	SessionID string `json:"sessionId"`
	PublicKey string `json:"publicKey"`
}

// ErrorMessage reports a command that could not be served.
type ErrorMessage struct {
	Type    string `json:"type"`
	Game    string `json:"game"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("invalid command: %w", err)
	}
	switch cmd.Type {
	case CommandJoin, CommandLeave, CommandPlaceBets:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	if cmd.SessionID == "" && cmd.Type != CommandJoin {
		return Command{}, fmt.Errorf("invalid command: %s needs a session id", cmd.Type)
	}
	return cmd, nil
}
