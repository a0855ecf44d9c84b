package services

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(ErrTransient, "archive", "upload file", "POST failed", base)

	if !errors.Is(err, ErrTransient) {
		t.Error("wrapped error should match its marker")
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should keep the cause")
	}
	want := "transient failure: archive: upload file: POST failed: connection refused"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "convert", "run dcm2niix", "unexpected exit", nil)
	if !errors.Is(err, ErrTransient) {
		t.Error("nil marker should default to transient")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(Wrap(ErrValidation, "reconcile", "reassign", "file missing", nil)) {
		t.Error("validation failures are not retryable")
	}
	if IsRetryable(Wrap(ErrNotFound, "cache", "get", "no entry", nil)) {
		t.Error("not-found failures are not retryable")
	}
	if !IsRetryable(Wrap(ErrTimeout, "archive", "upload", "deadline", nil)) {
		t.Error("timeouts are retryable")
	}
	if !IsRetryable(Wrap(ErrExternalTool, "convert", "dcm2niix", "exit 1", nil)) {
		t.Error("external tool failures are retryable")
	}
}
