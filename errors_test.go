package heapcap

import (
	"errors"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := NewError("ingest.Flush", KindFrameOrder, "frame went backwards")
	want := "heapcap: ingest.Flush: frame went backwards"
	if got := e.Error(); got != want {
		t.Fatalf("Error(): want %q, got %q", want, got)
	}
}

func TestErrorMessageFallsBackToKind(t *testing.T) {
	e := NewError("op", KindStore, "")
	if got := e.Error(); got != "heapcap: op: store" {
		t.Fatalf("Error(): got %q", got)
	}
}

func TestWrapErrorPreservesKind(t *testing.T) {
	inner := NewError("store.Insert", KindStore, "disk full")
	wrapped := WrapError("ingest.flush", inner)
	if wrapped.Kind != KindStore {
		t.Fatalf("WrapError: want KindStore, got %v", wrapped.Kind)
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("errors.Is(wrapped, inner): want true")
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	if WrapError("op", nil) != nil {
		t.Fatal("WrapError(nil): want nil")
	}
}

func TestWrapErrorPlainError(t *testing.T) {
	wrapped := WrapError("store.Open", errors.New("disk full"))
	if wrapped.Kind != KindStore {
		t.Fatalf("WrapError of a plain error: want KindStore default, got %v", wrapped.Kind)
	}
}

func TestIsKind(t *testing.T) {
	err := NewError("op", KindUnmatchedRequest, "no such request id")
	if !IsKind(err, KindUnmatchedRequest) {
		t.Fatal("IsKind: want true")
	}
	if IsKind(err, KindStore) {
		t.Fatal("IsKind: want false for a different kind")
	}
	if IsKind(errors.New("plain"), KindStore) {
		t.Fatal("IsKind on a non-*Error: want false")
	}
}
