package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/trade-hub/trade-hub/internal/domain/asset"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", Locked("conversation is locked"))
	if KindOf(err) != KindLocked {
		t.Fatalf("expected LOCKED, got %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("expected no kind for plain errors")
	}
}

func TestUnauthorizedUnwraps(t *testing.T) {
	cause := errors.New("invalid token")
	err := Unauthorized(cause)
	if !Is(err, KindUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %q", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected the cause to stay reachable")
	}
	if err.Error() != "invalid token" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestOwnershipCarriesAsset(t *testing.T) {
	ref := asset.Ref{Kind: "card", ID: "7"}
	err := Ownership(ref, "asset %s is not tradable", ref)
	if err.Asset == nil || *err.Asset != ref {
		t.Fatalf("expected asset %v, got %v", ref, err.Asset)
	}
	if err.Error() != "asset card/7 is not tradable" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestAbortedUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Aborted(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected aborted fault to wrap its cause")
	}
	if !Is(err, KindAborted) {
		t.Fatal("expected ABORTED kind")
	}
	if err.Error() != "trade was not executed: disk full" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
