package apierr

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestErrorJSONRoundTrip(t *testing.T) {
	orig := New("Find /puppet/v4/catalog resulted in 404 with the message: \"404\"", KindNotFound, map[string]any{
		"status_code": "404",
		"body":        "404",
	})

	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "issue_code") {
		t.Fatalf("issue_code should be omitted when unset: %s", raw)
	}

	var decoded Error
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind() != orig.Kind() || decoded.Msg() != orig.Msg() {
		t.Fatalf("round trip mismatch: got %q/%q", decoded.Kind(), decoded.Msg())
	}
	if !reflect.DeepEqual(decoded.Details(), orig.Details()) {
		t.Fatalf("details mismatch: got %#v want %#v", decoded.Details(), orig.Details())
	}
	if decoded.IssueCode() != "" {
		t.Fatalf("unexpected issue code %q", decoded.IssueCode())
	}
}

func TestErrorJSONIncludesIssueCodeWhenSet(t *testing.T) {
	e := New("boom", KindServerError, nil).WithIssueCode("CATALOG_COMPILE")

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}
	for _, key := range []string{"kind", "msg", "details", "issue_code"} {
		if _, ok := generic[key]; !ok {
			t.Fatalf("missing key %q in %s", key, raw)
		}
	}
	if generic["issue_code"] != "CATALOG_COMPILE" {
		t.Fatalf("issue_code = %v", generic["issue_code"])
	}

	var decoded Error
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.IssueCode() != "CATALOG_COMPILE" {
		t.Fatalf("issue code lost in round trip: %q", decoded.IssueCode())
	}
}

func TestNewDefaultsDetailsToEmptyObject(t *testing.T) {
	e := New("oops", KindRequestFailed, nil)
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"details":{}`) {
		t.Fatalf("expected empty details object, got %s", raw)
	}
	if got := e.ToMap()["details"]; !reflect.DeepEqual(got, map[string]any{}) {
		t.Fatalf("ToMap details = %#v", got)
	}
}

func TestDetailsAreNotShared(t *testing.T) {
	in := map[string]any{"a": "1"}
	e := New("oops", KindRequestFailed, in)
	in["a"] = "2"

	d := e.Details()
	d["a"] = "3"

	if got := e.Details()["a"]; got != "1" {
		t.Fatalf("details mutated through caller map: %v", got)
	}
}

func TestUnmarshalRejectsMissingKind(t *testing.T) {
	var e Error
	if err := json.Unmarshal([]byte(`{"msg":"x","details":{}}`), &e); err == nil {
		t.Fatalf("expected error for document without kind")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil) != nil {
		t.Fatalf("FromError(nil) should be nil")
	}

	classified := New("not here", KindNotFound, nil)
	wrapped := errors.Join(errors.New("context"), classified)
	if got := FromError(wrapped); got != classified {
		t.Fatalf("expected classified error to pass through, got %#v", got)
	}

	plain := errors.New("dial tcp: connection refused")
	got := FromError(plain)
	if got.Kind() != KindTransportError {
		t.Fatalf("kind = %s", got.Kind())
	}
	if got.Msg() != plain.Error() {
		t.Fatalf("msg = %q", got.Msg())
	}
	if !errors.Is(got, plain) {
		t.Fatalf("transport error should unwrap to original")
	}
}

func TestKindOf(t *testing.T) {
	err := New("x", KindDecodeError, nil)
	kind, ok := KindOf(err)
	if !ok || kind != KindDecodeError {
		t.Fatalf("KindOf = %s, %v", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("plain errors have no kind")
	}
	if !errors.Is(err, New("", KindDecodeError, nil)) {
		t.Fatalf("errors.Is should match on kind")
	}
}
