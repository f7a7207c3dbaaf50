// Package journal keeps a local record of submitted transactions so a caller
// that got a Pending outcome can find what is still outstanding. It stores
// transaction metadata only; it is not an order history.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var ErrNotFound = errors.New("journal entry not found")

type Entry struct {
	From        common.Address  `json:"from"`
	Nonce       uint64          `json:"nonce"`
	Hash        common.Hash     `json:"hash"`
	Method      string          `json:"method"`
	To          *common.Address `json:"to,omitempty"`
	Status      Status          `json:"status"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Raw         hexutil.Bytes   `json:"raw,omitempty"` // signed transaction, binary encoding
}

type Journal interface {
	Record(e Entry) error
	MarkResult(from common.Address, nonce uint64, status Status, block uint64) error
	ListPending(from common.Address) ([]Entry, error)
	Close() error
}

// Open returns a pebble-backed journal at path, or a no-op journal when path is empty.
func Open(path string) (Journal, error) {
	if path == "" {
		return Nop{}, nil
	}
	return NewStore(path)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(Entry) error                                      { return nil }
func (Nop) MarkResult(common.Address, uint64, Status, uint64) error { return nil }
func (Nop) ListPending(common.Address) ([]Entry, error)             { return nil, nil }
func (Nop) Close() error                                            { return nil }

// Store provides Pebble-based persistence for journal entries
type Store struct {
	db  *pebble.DB
	now func() time.Time
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record persists a new submission. A later submission with the same
// (from, nonce) overwrites the earlier one: the node only keeps one of them.
func (s *Store) Record(e Entry) error {
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = s.now()
	}
	e.UpdatedAt = e.SubmittedAt
	return s.put(e)
}

func (s *Store) put(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := s.db.Set(txKey(e.From, e.Nonce), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

func (s *Store) Get(from common.Address, nonce uint64) (Entry, error) {
	data, closer, err := s.db.Get(txKey(from, nonce))
	if err == pebble.ErrNotFound {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get entry: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return e, nil
}

// MarkResult records the final outcome of a submission.
func (s *Store) MarkResult(from common.Address, nonce uint64, status Status, block uint64) error {
	e, err := s.Get(from, nonce)
	if err != nil {
		return err
	}
	e.Status = status
	e.BlockNumber = block
	e.UpdatedAt = s.now()
	return s.put(e)
}

// List returns every entry of from in nonce order.
func (s *Store) List(from common.Address) ([]Entry, error) {
	prefix := txPrefix(from)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue // Skip invalid entries
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListPending returns entries of from that never got a final outcome.
func (s *Store) ListPending(from common.Address) ([]Entry, error) {
	all, err := s.List(from)
	if err != nil {
		return nil, err
	}
	var pending []Entry
	for _, e := range all {
		if e.Status == StatusPending {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

var _ Journal = (*Store)(nil)
var _ Journal = Nop{}
