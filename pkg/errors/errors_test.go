package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeRenderFailed, status: http.StatusUnprocessableEntity, publicMsg: "document could not be rendered"},
		{code: CodeTranscodeFailed, status: http.StatusUnprocessableEntity, publicMsg: "page image could not be transcoded"},
		{code: CodeStorageUnavailable, status: http.StatusServiceUnavailable, publicMsg: "object storage unavailable", retryable: true},
		{code: CodeStorageRejected, status: http.StatusBadGateway, publicMsg: "object storage rejected the write"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := stdErrors.New("exit status 1")
	err := fmt.Errorf("render page set: %w", Wrap(CodeRenderFailed, cause, "pdftoppm failed"))

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if CodeOf(err) != CodeRenderFailed {
		t.Fatalf("expected render failed code, got %s", CodeOf(err))
	}
	if !IsCode(err, CodeRenderFailed) {
		t.Fatalf("IsCode should match render failed")
	}
	if IsCode(nil, CodeRenderFailed) {
		t.Fatalf("nil error should not match any code")
	}
}

func TestCodeOfUntypedIsInternal(t *testing.T) {
	if got := CodeOf(stdErrors.New("boom")); got != CodeInternal {
		t.Fatalf("expected internal code, got %s", got)
	}
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	if e.Code() != CodeInternal {
		t.Fatalf("nil error should report internal code")
	}
	if e.Message() != "" || e.Details() != nil || e.Unwrap() != nil {
		t.Fatalf("nil error accessors should be zero values")
	}
	if e.WithDetails("x") != nil {
		t.Fatalf("WithDetails on nil should stay nil")
	}
}
