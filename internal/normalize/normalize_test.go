package normalize

import "testing"

func TestStripInvisible(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"zero-width space", "ig​nore", "ignore"},
		{"BOM", "\ufeffhello", "hello"},
		{"bidi override", "a‮b", "ab"},
		{"clean text untouched", "plain text", "plain text"},
		{"tags block", "x\U000E0041y", "xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripInvisible(tt.in); got != tt.want {
				t.Errorf("StripInvisible(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFoldConfusables(t *testing.T) {
	// Cyrillic "іgnоre" with Ukrainian і and Cyrillic о.
	if got := FoldConfusables("іgnоre"); got != "ignore" {
		t.Errorf("FoldConfusables = %q, want %q", got, "ignore")
	}
	// Greek omicron.
	if got := FoldConfusables("ignοre"); got != "ignore" {
		t.Errorf("FoldConfusables greek = %q, want %q", got, "ignore")
	}
}

func TestScrub_Pipeline(t *testing.T) {
	// Zero-width joiner inside a homoglyph phrase, plus a fullwidth letter
	// that only NFKC folds.
	in := "іg‍nore ｐrevious"
	if got := Scrub(in); got != "ignore previous" {
		t.Errorf("Scrub(%q) = %q, want %q", in, got, "ignore previous")
	}
}
