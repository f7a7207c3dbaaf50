// Package submitter estimates, signs, broadcasts and confirms the toolkit's
// state-changing calls. All submissions for one signer go through the
// network Context's sequence counter, so concurrent callers never reuse a nonce.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/dexerr"
	"github.com/uhyunpark/dexkit/pkg/journal"
	"github.com/uhyunpark/dexkit/pkg/network"
	"github.com/uhyunpark/dexkit/pkg/util"
)

type Status int

const (
	Success Status = iota
	Failed
	Pending
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Pending:
		return "pending"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// GasEstimate is the node's estimate and the limit actually used.
type GasEstimate struct {
	Estimated uint64
	Limit     uint64 // Estimated scaled by the profile's multiplier
	GasPrice  *big.Int
}

// MaxFee is the most the transaction can cost in gas.
func (g GasEstimate) MaxFee() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(g.Limit), g.GasPrice)
}

// PendingTx is a broadcast transaction whose outcome is not known yet.
type PendingTx struct {
	Hash        common.Hash
	Nonce       uint64
	Method      string
	From        common.Address
	To          *common.Address
	Gas         GasEstimate
	SubmittedAt time.Time
	Fields      dexerr.Fields
}

// TxResult is the outcome of a submission. Status Pending means the wait
// ended before the transaction was confirmed; the transaction may still land.
type TxResult struct {
	Hash            common.Hash
	Nonce           uint64
	BlockNumber     uint64
	GasUsed         uint64
	Status          Status
	ContractAddress common.Address
	Logs            []*types.Log
	Events          []contracts.DecodedEvent
}

type Submitter struct {
	net         *network.Context
	journal     journal.Journal
	clock       util.Clock
	log         *zap.SugaredLogger
	maxInterval time.Duration
}

type Option func(*Submitter)

func WithJournal(j journal.Journal) Option {
	return func(s *Submitter) { s.journal = j }
}

func WithClock(c util.Clock) Option {
	return func(s *Submitter) { s.clock = c }
}

// WithMaxPollInterval caps the receipt polling backoff.
func WithMaxPollInterval(d time.Duration) Option {
	return func(s *Submitter) { s.maxInterval = d }
}

func New(nc *network.Context, opts ...Option) *Submitter {
	s := &Submitter{
		net:     nc,
		journal: journal.Nop{},
		clock:   util.RealClock{},
		log:     nc.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxInterval == 0 {
		s.maxInterval = 8 * s.pollInterval()
	}
	return s
}

func (s *Submitter) pollInterval() time.Duration {
	if d := s.net.Profile().Tx.PollInterval; d > 0 {
		return d
	}
	return 2 * time.Second
}

// Estimate asks the node for the gas the call needs. A call the node
// predicts would revert fails with EstimationError carrying the decoded
// revert reason.
func (s *Submitter) Estimate(ctx context.Context, from common.Address, req contracts.TxRequest) (GasEstimate, error) {
	backend, err := s.net.Backend()
	if err != nil {
		return GasEstimate{}, err
	}
	msg := ethereum.CallMsg{From: from, To: req.To, Data: req.Data, Value: req.Value}
	gas, err := backend.EstimateGas(ctx, msg)
	if err != nil {
		return GasEstimate{}, s.estimateError(req, err)
	}
	price, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return GasEstimate{}, &dexerr.ConnectionError{Endpoint: s.net.Profile().RPCURL, Err: fmt.Errorf("failed to get gas price: %w", err)}
	}

	pct := s.net.Profile().Tx.GasMultiplierPct
	if pct < 100 {
		pct = 100
	}
	return GasEstimate{
		Estimated: gas,
		Limit:     gas * pct / 100,
		GasPrice:  price,
	}, nil
}

func (s *Submitter) estimateError(req contracts.TxRequest, err error) error {
	if isTransportError(err) {
		return &dexerr.ConnectionError{Endpoint: s.net.Profile().RPCURL, Err: err}
	}
	return &dexerr.EstimationError{Op: req.Method, Reason: RevertReason(err), Fields: req.Fields, Err: err}
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RevertReason extracts the require() message from a node error, or "" if
// the node gave none.
func RevertReason(err error) string {
	var de rpc.DataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if data, err := hexutil.Decode(hexData); err == nil {
				if reason, err := abi.UnpackRevert(data); err == nil {
					return reason
				}
			}
		}
	}
	const marker = "execution reverted: "
	msg := err.Error()
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return ""
}

// Submit estimates, signs and broadcasts req from the context's signer. The
// nonce is taken under the signer lock; a nonce rejection by the node yields
// NonceConflictError and the next Submit re-fetches the nonce.
func (s *Submitter) Submit(ctx context.Context, req contracts.TxRequest) (*PendingTx, error) {
	signer := s.net.Signer()
	if signer == nil {
		return nil, fmt.Errorf("%s: no signer configured", req.Method)
	}
	backend, err := s.net.Backend()
	if err != nil {
		return nil, err
	}
	from := signer.Address()

	est, err := s.Estimate(ctx, from, req)
	if err != nil {
		return nil, err
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	chainID := s.net.Profile().ChainID

	var (
		pending *PendingTx
		raw     []byte
	)
	err = s.net.WithNonce(ctx, func(nonce uint64) error {
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: est.GasPrice,
			Gas:      est.Limit,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		})
		signed, err := signer.SignTx(tx, chainID)
		if err != nil {
			return fmt.Errorf("%s: failed to sign: %w", req.Method, err)
		}
		// the journal keeps the raw bytes of everything broadcast
		raw, err = signed.MarshalBinary()
		if err != nil {
			return fmt.Errorf("%s: failed to encode signed tx: %w", req.Method, err)
		}
		if err := backend.SendTransaction(ctx, signed); err != nil {
			return s.broadcastError(req, nonce, err)
		}
		pending = &PendingTx{
			Hash:        signed.Hash(),
			Nonce:       nonce,
			Method:      req.Method,
			From:        from,
			To:          req.To,
			Gas:         est,
			SubmittedAt: s.clock.Now(),
			Fields:      req.Fields,
		}
		return nil
	})
	if err != nil {
		if dexerr.IsNonceConflict(err) {
			s.log.Warnw("nonce_conflict", "method", req.Method, "from", from.Hex(), "error", err)
		}
		return nil, err
	}

	if err := s.journal.Record(journal.Entry{
		From:        from,
		Nonce:       pending.Nonce,
		Hash:        pending.Hash,
		Method:      pending.Method,
		To:          pending.To,
		Status:      journal.StatusPending,
		SubmittedAt: pending.SubmittedAt,
		Raw:         raw,
	}); err != nil {
		s.log.Warnw("journal_record_failed", "hash", pending.Hash.Hex(), "error", err)
	}

	s.log.Infow("tx_submitted",
		"method", req.Method,
		"hash", pending.Hash.Hex(),
		"nonce", pending.Nonce,
		"gas_estimated", est.Estimated,
		"gas_limit", est.Limit,
		"gas_price", est.GasPrice.String(),
	)
	return pending, nil
}

var nonceRejections = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"already known",
	"invalid nonce",
}

func isNonceRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range nonceRejections {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (s *Submitter) broadcastError(req contracts.TxRequest, nonce uint64, err error) error {
	if isNonceRejection(err) {
		return &dexerr.NonceConflictError{Op: req.Method, Nonce: nonce, Fields: req.Fields, Err: err}
	}
	if isTransportError(err) {
		return &dexerr.ConnectionError{Endpoint: s.net.Profile().RPCURL, Err: err}
	}
	return fmt.Errorf("%s: broadcast rejected: %w", req.Method, err)
}

// AwaitConfirmation polls for the receipt until it has the profile's number
// of confirmations or timeout passes (timeout <= 0 uses the profile's
// AwaitTimeout). Running out of time is not an error: the result has Status
// Pending. A cancelled ctx returns a Pending result with ctx.Err().
// The transaction is never resubmitted.
func (s *Submitter) AwaitConfirmation(ctx context.Context, p *PendingTx, timeout time.Duration) (TxResult, error) {
	backend, err := s.net.Backend()
	if err != nil {
		return TxResult{}, err
	}
	tx := s.net.Profile().Tx
	if timeout <= 0 {
		timeout = tx.AwaitTimeout
	}
	confirmations := uint64(1)
	if tx.Confirmations > 1 {
		confirmations = uint64(tx.Confirmations)
	}

	pending := TxResult{Hash: p.Hash, Nonce: p.Nonce, Status: Pending}
	deadline := s.clock.Now().Add(timeout)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.pollInterval()
	bo.MaxInterval = s.maxInterval
	bo.MaxElapsedTime = 0
	bo.Clock = s.clock
	bo.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return pending, err
		}
		receipt, err := backend.TransactionReceipt(ctx, p.Hash)
		switch {
		case err == nil:
			done, err := s.confirmed(ctx, backend, receipt, confirmations)
			if err != nil && ctx.Err() != nil {
				return pending, ctx.Err()
			}
			if done {
				return s.finish(p, receipt), nil
			}
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
			return pending, ctx.Err()
		default:
			s.log.Warnw("receipt_poll_failed", "hash", p.Hash.Hex(), "error", err)
		}

		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			s.log.Warnw("tx_pending", "method", p.Method, "hash", p.Hash.Hex(), "nonce", p.Nonce, "waited", timeout.String())
			return pending, nil
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop || wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return pending, ctx.Err()
		case <-s.clock.After(wait):
		}
	}
}

// confirmed reports whether the receipt's block has enough blocks on top,
// counting its own block.
func (s *Submitter) confirmed(ctx context.Context, backend network.Backend, receipt *types.Receipt, confirmations uint64) (bool, error) {
	if receipt.BlockNumber == nil {
		return false, nil
	}
	head, err := backend.BlockNumber(ctx)
	if err != nil {
		s.log.Warnw("block_number_failed", "error", err)
		return false, err
	}
	mined := receipt.BlockNumber.Uint64()
	if head < mined {
		return false, nil
	}
	return head-mined+1 >= confirmations, nil
}

func (s *Submitter) finish(p *PendingTx, receipt *types.Receipt) TxResult {
	result := TxResult{
		Hash:            receipt.TxHash,
		Nonce:           p.Nonce,
		BlockNumber:     receipt.BlockNumber.Uint64(),
		GasUsed:         receipt.GasUsed,
		Status:          Success,
		ContractAddress: receipt.ContractAddress,
		Logs:            receipt.Logs,
		Events:          contracts.DecodeLogs(receipt.Logs),
	}
	status := journal.StatusSuccess
	if receipt.Status != types.ReceiptStatusSuccessful {
		result.Status = Failed
		status = journal.StatusFailed
	}

	if err := s.journal.MarkResult(p.From, p.Nonce, status, result.BlockNumber); err != nil {
		s.log.Warnw("journal_update_failed", "hash", p.Hash.Hex(), "error", err)
	}

	fields := []interface{}{
		"method", p.Method,
		"hash", result.Hash.Hex(),
		"block", result.BlockNumber,
		"gas_used", result.GasUsed,
		"events", len(result.Events),
	}
	if result.Status == Failed {
		s.log.Warnw("tx_failed", fields...)
	} else {
		s.log.Infow("tx_confirmed", fields...)
	}
	return result
}

// Send submits req and waits for it with the profile's timeout.
func (s *Submitter) Send(ctx context.Context, req contracts.TxRequest) (TxResult, error) {
	p, err := s.Submit(ctx, req)
	if err != nil {
		return TxResult{}, err
	}
	return s.AwaitConfirmation(ctx, p, 0)
}

// DecodeEvents returns the result's events in log order. When expected names
// are given, each must appear at least once.
func DecodeEvents(result TxResult, expected ...string) ([]contracts.DecodedEvent, error) {
	events := result.Events
	if events == nil && len(result.Logs) > 0 {
		events = contracts.DecodeLogs(result.Logs)
	}
	for _, name := range expected {
		if len(contracts.Filter(events, name)) == 0 {
			return events, fmt.Errorf("tx %s: expected event %s not found", result.Hash.Hex(), name)
		}
	}
	return events, nil
}
