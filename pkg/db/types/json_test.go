package dbtypes

import "testing"

func TestScanJSONAcceptsStringsAndBytes(t *testing.T) {
	var out []int
	if err := ScanJSON(`[1,2,3]`, &out); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %v", out)
	}

	var fromBytes map[string]string
	if err := ScanJSON([]byte(`{"key":"magazines/a/source.pdf"}`), &fromBytes); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if fromBytes["key"] != "magazines/a/source.pdf" {
		t.Fatalf("unexpected decode %v", fromBytes)
	}
}

func TestScanJSONNilAndUnsupported(t *testing.T) {
	out := []int{7}
	if err := ScanJSON(nil, &out); err != nil || len(out) != 1 {
		t.Fatalf("nil should leave destination untouched, got %v err=%v", out, err)
	}
	if err := ScanJSON(42, &out); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestValueJSON(t *testing.T) {
	v, err := ValueJSON([]string{"tech", "startups"})
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != `["tech","startups"]` {
		t.Fatalf("unexpected value %v", v)
	}
}
