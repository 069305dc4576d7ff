package core

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/cometbft/cometbft/crypto/tmhash"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
)

// TxType names a protocol instruction.
type TxType string

const (
	TxRegisterAgent  TxType = "register_agent"
	TxInvokeAgent    TxType = "invoke_agent"
	TxUpdateJob      TxType = "update_job"
	TxReleasePayment TxType = "release_payment"
	TxAutoRelease    TxType = "auto_release"
	TxCancelJob      TxType = "cancel_job"
	TxDelegateTask   TxType = "delegate_task"
	TxRaiseDispute   TxType = "raise_dispute"
	TxResolveDispute TxType = "resolve_dispute_by_timeout"
	TxRateAgent      TxType = "rate_agent"
)

// Transaction is the signed envelope delivered by the consensus engine.
type Transaction struct {
	Type      TxType          `json:"type"`
	Signer    []byte          `json:"signer"`
	Nonce     uint64          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature,omitempty"`
}

type RegisterAgentPayload struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Capabilities Capability `json:"capabilities"`
	Price        uint64     `json:"price"`
}

type InvokeAgentPayload struct {
	AgentProfile       Address `json:"agent_profile"`
	Description        string  `json:"description"`
	Payment            uint64  `json:"payment"`
	AutoReleaseSeconds *int64  `json:"auto_release_seconds,omitempty"`
	Seed               int64   `json:"seed"`
}

type UpdateJobPayload struct {
	Job       Address `json:"job"`
	ResultURI string  `json:"result_uri"`
}

// ReleasePayload is shared by release_payment and auto_release. ParentJob,
// when set, must match the parent recorded on the job.
type ReleasePayload struct {
	Job       Address  `json:"job"`
	ParentJob *Address `json:"parent_job,omitempty"`
}

// JobPayload addresses a job for cancel, dispute and dispute resolution.
type JobPayload struct {
	Job Address `json:"job"`
}

type DelegateTaskPayload struct {
	ParentJob       Address `json:"parent_job"`
	SubAgentProfile Address `json:"sub_agent_profile"`
	Description     string  `json:"description"`
	Amount          uint64  `json:"amount"`
	Seed            int64   `json:"seed"`
}

type RateAgentPayload struct {
	Job   Address `json:"job"`
	Score uint8   `json:"score"`
}

// NewTransaction builds an unsigned envelope around payload.
func NewTransaction(txType TxType, nonce uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	return &Transaction{Type: txType, Nonce: nonce, Payload: raw}, nil
}

// SignBytes is the canonical byte string covered by the signature.
func (tx *Transaction) SignBytes() ([]byte, error) {
	bz, err := json.Marshal(struct {
		Type    TxType          `json:"type"`
		Signer  []byte          `json:"signer"`
		Nonce   uint64          `json:"nonce"`
		Payload json.RawMessage `json:"payload"`
	}{tx.Type, tx.Signer, tx.Nonce, tx.Payload})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "sign bytes"), ErrInvalidTransaction)
	}
	return bz, nil
}

// Sign sets the signer and signature.
func (tx *Transaction) Sign(priv crypto.PrivKey) error {
	tx.Signer = priv.PubKey().Bytes()
	msg, err := tx.SignBytes()
	if err != nil {
		return err
	}
	sig, err := priv.Sign(msg)
	if err != nil {
		return errors.Wrap(err, "sign transaction")
	}
	tx.Signature = sig
	return nil
}

// Verify checks the signature and returns the authenticated signer address.
func (tx *Transaction) Verify() (Address, error) {
	if len(tx.Signer) != ed25519.PubKeySize {
		return Address{}, errors.Wrapf(ErrInvalidSignature, "signer key must be %d bytes", ed25519.PubKeySize)
	}
	msg, err := tx.SignBytes()
	if err != nil {
		return Address{}, err
	}
	pub := ed25519.PubKey(tx.Signer)
	if !pub.VerifySignature(msg, tx.Signature) {
		return Address{}, ErrInvalidSignature
	}
	return AddressFromPubKey(pub), nil
}

// DecodePayload unmarshals the payload into v.
func (tx *Transaction) DecodePayload(v any) error {
	if err := json.Unmarshal(tx.Payload, v); err != nil {
		return errors.Wrapf(ErrInvalidTransaction, "decode %s payload: %v", tx.Type, err)
	}
	return nil
}

func (tx *Transaction) Encode() ([]byte, error) {
	return json.Marshal(tx)
}

// DecodeTransaction parses a raw transaction. It does not verify the signature.
func DecodeTransaction(bz []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(bz, &tx); err != nil {
		return nil, errors.Wrapf(ErrInvalidTransaction, "decode envelope: %v", err)
	}
	if tx.Type == "" {
		return nil, errors.Wrap(ErrInvalidTransaction, "missing type")
	}
	return &tx, nil
}

// TxHash returns the hex hash cometbft reports for raw transaction bytes.
func TxHash(bz []byte) string {
	return cmtbytes.HexBytes(tmhash.Sum(bz)).String()
}
