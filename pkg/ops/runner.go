// Package ops composes contract bindings and the submitter into the named
// exchange operations. Each state-changing operation sends exactly one
// transaction; read-only operations never go through the submitter.
package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/dexerr"
	"github.com/uhyunpark/dexkit/pkg/journal"
	"github.com/uhyunpark/dexkit/pkg/network"
	"github.com/uhyunpark/dexkit/pkg/submitter"
)

// ErrReverted is wrapped by operations whose transaction was mined but failed.
var ErrReverted = errors.New("transaction reverted")

// Result is the outcome of one state-changing operation.
type Result struct {
	Op     string
	Tx     submitter.TxResult
	Events []contracts.DecodedEvent
}

// Pending reports whether the wait ended before the transaction confirmed.
func (r Result) Pending() bool { return r.Tx.Status == submitter.Pending }

type Runner struct {
	net        *network.Context
	sub        *submitter.Submitter
	exchange   *contracts.Exchange
	governor   *contracts.Governor
	commission *contracts.CommissionManager
	journal    journal.Journal
	timeout    time.Duration
	log        *zap.SugaredLogger
}

type Option func(*Runner)

// WithJournal is the journal ListPending reads; it should be the one the
// submitter writes to.
func WithJournal(j journal.Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithTimeout overrides the profile's confirmation timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

func NewRunner(nc *network.Context, sub *submitter.Submitter, opts ...Option) *Runner {
	p := nc.Profile()
	r := &Runner{
		net:      nc,
		sub:      sub,
		exchange: contracts.NewExchange(p.Dex, nc),
		journal:  journal.Nop{},
		log:      nc.Logger(),
	}
	if p.Governor != (common.Address{}) {
		r.governor = contracts.NewGovernor(p.Governor, nc)
	}
	if p.CommissionManager != (common.Address{}) {
		r.commission = contracts.NewCommissionManager(p.CommissionManager, nc)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Exchange() *contracts.Exchange { return r.exchange }

func (r *Runner) token(addr common.Address) *contracts.Token {
	return contracts.NewToken(addr, r.net)
}

// send submits req and waits for it. A nonce conflict is retried once with a
// freshly fetched nonce; a second conflict is returned to the caller.
func (r *Runner) send(ctx context.Context, req contracts.TxRequest) (Result, error) {
	res := Result{Op: req.Method}

	p, err := r.sub.Submit(ctx, req)
	if dexerr.IsNonceConflict(err) {
		r.log.Warnw("nonce_conflict_retry", "op", req.Method)
		p, err = r.sub.Submit(ctx, req)
	}
	if err != nil {
		return res, err
	}

	tx, err := r.sub.AwaitConfirmation(ctx, p, r.timeout)
	res.Tx = tx
	res.Events = tx.Events
	if err != nil {
		return res, err
	}
	if tx.Status == submitter.Failed {
		return res, fmt.Errorf("%s: %w (tx %s)%s", req.Method, ErrReverted, tx.Hash.Hex(), req.Fields)
	}
	return res, nil
}

// ListPending returns the signer's journaled transactions without a final outcome.
func (r *Runner) ListPending() ([]journal.Entry, error) {
	if r.net.Signer() == nil {
		return nil, errors.New("pending: no signer configured")
	}
	return r.journal.ListPending(r.net.From())
}
