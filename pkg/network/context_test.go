package network_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexkit/params"
	"github.com/uhyunpark/dexkit/pkg/chaintest"
	"github.com/uhyunpark/dexkit/pkg/crypto"
	"github.com/uhyunpark/dexkit/pkg/dexerr"
	"github.com/uhyunpark/dexkit/pkg/network"
)

const testKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func profile() params.NetworkProfile {
	return params.NetworkProfile{
		Name:    "dexTestnet",
		RPCURL:  "http://node.test",
		ChainID: big.NewInt(31),
	}
}

func dialer(b *chaintest.Backend, calls *int) network.Option {
	return network.WithDialer(func(context.Context, string) (network.Backend, error) {
		if calls != nil {
			*calls++
		}
		return b, nil
	})
}

func signer(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.FromPrivateKeyHex(testKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func TestConnectVerifiesChainID(t *testing.T) {
	b := chaintest.NewBackend(30) // mainnet id, profile expects 31
	_, err := network.Connect(context.Background(), profile(), nil, nil, dialer(b, nil))

	var ce *dexerr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if b.Closed() != 1 {
		t.Errorf("backend closed %d times, want 1", b.Closed())
	}
}

func TestConnectUnreachable(t *testing.T) {
	dial := network.WithDialer(func(context.Context, string) (network.Backend, error) {
		return nil, errors.New("dial tcp 10.0.0.1:4444: connect: connection refused")
	})
	_, err := network.Connect(context.Background(), profile(), nil, nil, dial)

	var ce *dexerr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if ce.Endpoint != "http://node.test" {
		t.Errorf("endpoint = %q", ce.Endpoint)
	}
}

func TestConnectTwice(t *testing.T) {
	b := chaintest.NewBackend(31)
	dials := 0
	nc, err := network.Connect(context.Background(), profile(), nil, nil, dialer(b, &dials))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	err = nc.Connect(context.Background())
	var ace *dexerr.AlreadyConnectedError
	if !errors.As(err, &ace) {
		t.Fatalf("expected AlreadyConnectedError, got %v", err)
	}
	if dials != 1 {
		t.Errorf("dialed %d times, want 1", dials)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := chaintest.NewBackend(31)
	nc, err := network.Connect(context.Background(), profile(), nil, nil, dialer(b, nil))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	nc.Close()
	nc.Close()

	if nc.IsConnected() {
		t.Error("still connected after Close")
	}
	if b.Closed() != 1 {
		t.Errorf("backend closed %d times, want 1", b.Closed())
	}
	if _, err := nc.Backend(); !errors.Is(err, network.ErrNotConnected) {
		t.Errorf("Backend() after Close = %v", err)
	}
	if _, err := nc.BalanceAt(context.Background(), common.Address{}); !errors.Is(err, network.ErrNotConnected) {
		t.Errorf("BalanceAt() after Close = %v", err)
	}

	// a closed context can be reconnected
	if err := nc.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	nc.Close()
}

func TestWithNonceSequence(t *testing.T) {
	b := chaintest.NewBackend(31)
	s := signer(t)
	b.SetPendingNonce(s.Address(), 1650)

	nc, err := network.Connect(context.Background(), profile(), s, nil, dialer(b, nil))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	var got []uint64
	record := func(n uint64) error { got = append(got, n); return nil }
	for i := 0; i < 3; i++ {
		if err := nc.WithNonce(context.Background(), record); err != nil {
			t.Fatalf("WithNonce: %v", err)
		}
	}

	// a failure drops the local counter; the node now reports 1700
	b.SetPendingNonce(s.Address(), 1700)
	failed := nc.WithNonce(context.Background(), func(n uint64) error {
		got = append(got, n)
		return errors.New("rejected")
	})
	if failed == nil {
		t.Fatal("expected the fn error back")
	}
	if err := nc.WithNonce(context.Background(), record); err != nil {
		t.Fatalf("WithNonce: %v", err)
	}

	want := []uint64{1650, 1651, 1652, 1653, 1700}
	if len(got) != len(want) {
		t.Fatalf("nonces = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("nonces = %v, want %v", got, want)
		}
	}
}

func TestWithNonceConcurrent(t *testing.T) {
	b := chaintest.NewBackend(31)
	s := signer(t)
	nc, err := network.Connect(context.Background(), profile(), s, nil, dialer(b, nil))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nc.WithNonce(context.Background(), func(n uint64) error {
				mu.Lock()
				seen[n] = true
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	for n := uint64(0); n < 32; n++ {
		if !seen[n] {
			t.Fatalf("nonce %d never handed out (got %v)", n, seen)
		}
	}
}

func TestWithNonceNeedsSigner(t *testing.T) {
	b := chaintest.NewBackend(31)
	nc, err := network.Connect(context.Background(), profile(), nil, nil, dialer(b, nil))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	if err := nc.WithNonce(context.Background(), func(uint64) error { return nil }); err == nil {
		t.Fatal("expected error without a signer")
	}
	if nc.From() != (common.Address{}) {
		t.Errorf("From() = %s, want zero address", nc.From().Hex())
	}
}
