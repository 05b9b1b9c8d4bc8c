package enums

import "testing"

func TestMagazineStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to MagazineStatus
		allowed  bool
	}{
		{MagazineStatusDraft, MagazineStatusProcessing, true},
		{MagazineStatusReady, MagazineStatusProcessing, true},
		{MagazineStatusFailed, MagazineStatusProcessing, true},
		{MagazineStatusProcessing, MagazineStatusReady, true},
		{MagazineStatusProcessing, MagazineStatusFailed, true},
		{MagazineStatusDraft, MagazineStatusReady, false},
		{MagazineStatusReady, MagazineStatusDraft, false},
		{MagazineStatusFailed, MagazineStatusDraft, false},
		{MagazineStatusFailed, MagazineStatusReady, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestParseMagazineStatus(t *testing.T) {
	status, err := ParseMagazineStatus("ready")
	if err != nil || status != MagazineStatusReady {
		t.Fatalf("expected ready, got %q err=%v", status, err)
	}
	if _, err := ParseMagazineStatus("archived"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if !MagazineStatusFailed.IsTerminal() || MagazineStatusProcessing.IsTerminal() {
		t.Fatalf("terminal classification is wrong")
	}
}

func TestParsePageFormat(t *testing.T) {
	for input, want := range map[string]PageFormat{"": PageFormatWebP, "WEBP": PageFormatWebP, "jpeg": PageFormatJPEG, "jpg": PageFormatJPEG} {
		got, err := ParsePageFormat(input)
		if err != nil || got != want {
			t.Fatalf("ParsePageFormat(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParsePageFormat("gif"); err == nil {
		t.Fatalf("expected gif to be rejected")
	}
	if PageFormatJPEG.ContentType() != "image/jpeg" || PageFormatWebP.ContentType() != "image/webp" {
		t.Fatalf("unexpected content types")
	}
}
