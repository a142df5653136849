package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"luminar-api/config"
	"luminar-api/logger"
)

var (
	// ErrTransferRejected means the transfer definitely did not and will not land
	ErrTransferRejected  = errors.New("transfer rejected")
	ErrInvalidRecipient  = errors.New("invalid recipient address")
	ErrInsufficientFunds = errors.New("insufficient vault balance")

	errTransferPending = errors.New("transfer not yet confirmed")
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
	TransferExpired   TransferStatus = "expired"
)

// SignedTransfer is a transfer signed locally but not necessarily broadcast.
// Its signature is known up front so it can be persisted before sending.
type SignedTransfer struct {
	Signature            string
	LastValidBlockHeight uint64

	tx *solana.Transaction
}

// Payout moves prize lamports from the vault to a winner
type Payout interface {
	Prepare(ctx context.Context, to string, lamports uint64) (*SignedTransfer, error)
	// Submit broadcasts and waits for confirmation. ErrTransferRejected is
	// returned only when the transfer can never land; any other error leaves
	// the outcome unknown.
	Submit(ctx context.Context, t *SignedTransfer) error
	Status(ctx context.Context, signature string, lastValidBlockHeight uint64) (TransferStatus, error)
}

// transferFeeLamports covers the base fee of a single-signature transaction
const transferFeeLamports = 5000

type SolanaPayout struct {
	RPC          *rpc.Client
	PollInterval time.Duration

	vault solana.PrivateKey
}

func NewSolanaPayout(cfg config.SolanaConfig) (*SolanaPayout, error) {
	vault, err := solana.PrivateKeyFromBase58(cfg.VaultSecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid vault secret key: %w", err)
	}
	return &SolanaPayout{RPC: rpc.New(cfg.RPCURL), PollInterval: time.Second, vault: vault}, nil
}

// VaultAddress is the public key prizes are paid from
func (p *SolanaPayout) VaultAddress() string {
	return p.vault.PublicKey().String()
}

func (p *SolanaPayout) Prepare(ctx context.Context, to string, lamports uint64) (*SignedTransfer, error) {
	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	from := p.vault.PublicKey()

	balance, err := p.RPC.GetBalance(ctx, from, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get vault balance: %w", err)
	}
	if balance.Value < lamports+transferFeeLamports {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance.Value, lamports+transferFeeLamports)
	}

	latest, err := p.RPC.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, from, recipient).Build()},
		latest.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &p.vault
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}

	return &SignedTransfer{
		Signature:            tx.Signatures[0].String(),
		LastValidBlockHeight: latest.Value.LastValidBlockHeight,
		tx:                   tx,
	}, nil
}

func (p *SolanaPayout) Submit(ctx context.Context, t *SignedTransfer) error {
	if t.tx == nil {
		return errors.New("transfer was not prepared by this payout")
	}

	maxRetries := uint(3)
	if _, err := p.RPC.SendTransactionWithOpts(ctx, t.tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	}); err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%w: %s", ErrTransferRejected, rpcErr.Message)
		}
		return fmt.Errorf("failed to send transfer: %w", err)
	}

	operation := func() error {
		status, err := p.Status(ctx, t.Signature, t.LastValidBlockHeight)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to poll transfer status", zap.String("signature", t.Signature), zap.Error(err))
			return err
		}
		switch status {
		case TransferConfirmed:
			return nil
		case TransferFailed, TransferExpired:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTransferRejected, status))
		default:
			return errTransferPending
		}
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(p.PollInterval), ctx))
}

func (p *SolanaPayout) Status(ctx context.Context, signature string, lastValidBlockHeight uint64) (TransferStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	out, err := p.RPC.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", fmt.Errorf("failed to get signature status: %w", err)
	}
	if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
		st := out.Value[0]
		if st.Err != nil {
			return TransferFailed, nil
		}
		switch st.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return TransferConfirmed, nil
		}
		return TransferPending, nil
	}

	height, err := p.RPC.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("failed to get block height: %w", err)
	}
	if height > lastValidBlockHeight {
		return TransferExpired, nil
	}
	return TransferPending, nil
}

// DevPayout pretends every transfer lands. Dev mode only.
type DevPayout struct{}

func (DevPayout) Prepare(_ context.Context, to string, lamports uint64) (*SignedTransfer, error) {
	logger.Info("dev payout prepared", zap.String("to", to), zap.Uint64("lamports", lamports))
	return &SignedTransfer{Signature: "dev-" + uuid.NewString()}, nil
}

func (DevPayout) Submit(context.Context, *SignedTransfer) error { return nil }

func (DevPayout) Status(context.Context, string, uint64) (TransferStatus, error) {
	return TransferConfirmed, nil
}
