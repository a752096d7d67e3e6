package match

import "testing"

func TestMatchesCaseInsensitive(t *testing.T) {
	t.Parallel()

	if !Matches("A TRANSFORMER Model", []string{"transformer"}) {
		t.Fatal("expected case-insensitive substring match")
	}
	if !Matches("diffusion models for video", []string{"GAN", "Diffusion"}) {
		t.Fatal("expected disjunctive match on second keyword")
	}
	if Matches("graph neural networks", []string{"diffusion", "RLHF"}) {
		t.Fatal("expected no match when no keyword occurs")
	}
}

func TestMatchesEmptyKeywords(t *testing.T) {
	t.Parallel()

	if !Matches("arbitrary text", nil) {
		t.Fatal("empty keyword set must match everything")
	}
	if !Matches("", []string{}) {
		t.Fatal("empty keyword set must match empty text")
	}
}

func TestMatchesBlankKeywordsIgnored(t *testing.T) {
	t.Parallel()

	if Matches("some abstract", []string{"  ", ""}) {
		t.Fatal("blank keywords must not match")
	}
}

func TestPaperText(t *testing.T) {
	t.Parallel()

	text := PaperText("Attention Is All You Need", "We propose the Transformer.", "nlp, attention")
	if !Matches(text, []string{"transformer"}) {
		t.Fatal("abstract content must be searchable")
	}
	if !Matches(text, []string{"attention"}) {
		t.Fatal("keyword column must be searchable")
	}
}
