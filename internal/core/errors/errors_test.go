package errors

import (
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "resource not found")
		if err.Error() != "[NOT_FOUND] resource not found" {
			t.Errorf("expected [NOT_FOUND] resource not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		expected := "[INTERNAL_ERROR] internal failure: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "invalid input")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		if !IsCode(err, CodeInternal) {
			t.Error("expected IsCode to return true for wrapped CodeInternal")
		}
	})

	t.Run("ContextIsSorted", func(t *testing.T) {
		err := NewNode(CodeNotInstalled, "missing", nil)
		err.WithContext(CtxPath, "/a").WithContext(CtxPackage, "left-pad")
		expected := "[NOT_INSTALLED] missing {package=left-pad path=/a}"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("AddContextWrapsForeign", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxOperation, "read")
		de, ok := As(err)
		if !ok {
			t.Fatal("expected DomainError")
		}
		if de.Code != CodeInternal || de.Context[CtxOperation] != "read" {
			t.Errorf("unexpected wrapped error: %+v", de)
		}
	})
}

func TestIsIssue(t *testing.T) {
	issues := []ErrorCode{CodeInvalidManifest, CodeNotInstalled, CodeResolutionTimeout, CodeScanError, CodeScanTimeout}
	for _, code := range issues {
		if !IsIssue(code) {
			t.Errorf("expected %s to count as an issue", code)
		}
	}
	if IsIssue(CodeResolutionWarning) {
		t.Error("resolution warnings are informational")
	}
}
