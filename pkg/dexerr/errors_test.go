package dexerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFieldsStableOrder(t *testing.T) {
	f := Fields{"price": "14000", "amount": "0.001", "pair": "DOC/WRBTC"}
	got := f.String()
	want := " [amount=0.001 pair=DOC/WRBTC price=14000]"
	if got != want {
		t.Errorf("Fields.String() = %q, want %q", got, want)
	}
	if (Fields{}).String() != "" {
		t.Error("empty fields should render as empty string")
	}
}

func TestErrorsAs(t *testing.T) {
	base := errors.New("nonce too low")
	err := fmt.Errorf("submit: %w", &NonceConflictError{Op: "approve", Nonce: 7, Err: base})

	if !IsNonceConflict(err) {
		t.Fatal("expected wrapped NonceConflictError to be detected")
	}
	if !errors.Is(err, base) {
		t.Error("NonceConflictError should unwrap to the transport error")
	}
	if IsInvalidOrder(err) {
		t.Error("nonce conflict must not look like an invalid order")
	}
}

func TestEstimationErrorPrefersRevertReason(t *testing.T) {
	err := &EstimationError{Op: "insertBuyLimitOrder", Reason: "Pausable: paused", Err: errors.New("execution reverted")}
	if !strings.Contains(err.Error(), "Pausable: paused") {
		t.Errorf("error %q should carry revert reason", err.Error())
	}

	noReason := &EstimationError{Op: "approve", Err: errors.New("execution reverted")}
	if !strings.Contains(noReason.Error(), "execution reverted") {
		t.Errorf("error %q should fall back to transport message", noReason.Error())
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Network: "dexTestnet", Reason: "missing rpc url"}
	if err.Error() != `config: network "dexTestnet": missing rpc url` {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
