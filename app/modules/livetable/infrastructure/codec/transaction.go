package txcodec

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
)

// Namespace every transaction signature is bound to.
var Namespace = []byte("_NULLSPACE_TX")

// envelopeTransactions is the submission tag for a batch of transactions.
const envelopeTransactions byte = 1

var ErrBadSignature = errors.New("transaction signature does not verify")

// Transaction is a signed instruction.
type Transaction struct {
	Nonce       uint64
	Instruction []byte
	PublicKey   ed25519.PublicKey
	Signature   []byte
}

// SignedMessage is the byte string the signature covers:
// varint(len(namespace)) || namespace || nonce || instruction.
func SignedMessage(nonce uint64, instruction []byte) []byte {
	msg := make([]byte, 0, binary.MaxVarintLen64+len(Namespace)+8+len(instruction))
	msg = binary.AppendUvarint(msg, uint64(len(Namespace)))
	msg = append(msg, Namespace...)
	msg = binary.BigEndian.AppendUint64(msg, nonce)
	return append(msg, instruction...)
}

// Sign builds a transaction for nonce and instruction.
func Sign(signer *livetabletypes.Signer, nonce uint64, instruction []byte) Transaction {
	return Transaction{
		Nonce:       nonce,
		Instruction: instruction,
		PublicKey:   signer.PublicKey,
		Signature:   signer.Sign(SignedMessage(nonce, instruction)),
	}
}

func (t Transaction) Verify() bool {
	if len(t.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(t.PublicKey, SignedMessage(t.Nonce, t.Instruction), t.Signature)
}

// Encode lays out nonce(u64 BE) || instruction || publicKey || signature.
func (t Transaction) Encode() []byte {
	buf := make([]byte, 0, 8+len(t.Instruction)+len(t.PublicKey)+len(t.Signature))
	buf = binary.BigEndian.AppendUint64(buf, t.Nonce)
	buf = append(buf, t.Instruction...)
	buf = append(buf, t.PublicKey...)
	return append(buf, t.Signature...)
}

// DecodeTransaction parses one encoded transaction and reports its length.
func DecodeTransaction(b []byte) (Transaction, int, error) {
	if len(b) < 8 {
		return Transaction{}, 0, ErrShortInstruction
	}
	nonce := binary.BigEndian.Uint64(b)
	_, n, err := DecodeInstruction(b[8:])
	if err != nil {
		return Transaction{}, 0, err
	}
	off := 8 + n
	if len(b) < off+ed25519.PublicKeySize+ed25519.SignatureSize {
		return Transaction{}, 0, ErrShortInstruction
	}
	tx := Transaction{
		Nonce:       nonce,
		Instruction: append([]byte(nil), b[8:off]...),
		PublicKey:   append(ed25519.PublicKey(nil), b[off:off+ed25519.PublicKeySize]...),
		Signature:   append([]byte(nil), b[off+ed25519.PublicKeySize:off+ed25519.PublicKeySize+ed25519.SignatureSize]...),
	}
	return tx, off + ed25519.PublicKeySize + ed25519.SignatureSize, nil
}

// EncodeSubmission wraps transactions in the ledger's submission envelope.
func EncodeSubmission(txs ...Transaction) []byte {
	buf := []byte{envelopeTransactions}
	buf = binary.AppendUvarint(buf, uint64(len(txs)))
	for _, tx := range txs {
		buf = append(buf, tx.Encode()...)
	}
	return buf
}

// DecodeSubmission is the inverse of EncodeSubmission. Signatures are verified.
func DecodeSubmission(b []byte) ([]Transaction, error) {
	if len(b) < 1 || b[0] != envelopeTransactions {
		return nil, fmt.Errorf("%w: envelope", ErrUnknownTag)
	}
	count, n := binary.Uvarint(b[1:])
	if n <= 0 || count > uint64(len(b)) {
		return nil, ErrShortInstruction
	}
	off := 1 + n
	txs := make([]Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		tx, used, err := DecodeTransaction(b[off:])
		if err != nil {
			return nil, err
		}
		if !tx.Verify() {
			return nil, ErrBadSignature
		}
		txs = append(txs, tx)
		off += used
	}
	return txs, nil
}
