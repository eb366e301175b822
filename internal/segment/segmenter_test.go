package segment

import (
	"reflect"
	"testing"
)

func collect(fragments []string, flush bool) []Sentence {
	var out []Sentence
	seg := New(func(s Sentence) { out = append(out, s) })
	for _, f := range fragments {
		seg.Push(f)
	}
	if flush {
		seg.Flush()
	}
	return out
}

func texts(sentences []Sentence) []string {
	var out []string
	for _, s := range sentences {
		out = append(out, s.Text)
	}
	return out
}

func TestAbbreviationNotABoundary(t *testing.T) {
	got := texts(collect([]string{"Dr. Smith won. Great news!"}, true))
	want := []string{"Dr. Smith won.", "Great news!"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNumberNotABoundary(t *testing.T) {
	got := texts(collect([]string{"Pi is 3. 14 is not pi. Done. "}, true))
	want := []string{"Pi is 3. 14 is not pi.", "Done."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNoEndsASentence(t *testing.T) {
	got := texts(collect([]string{"She said no. Then she left. "}, true))
	want := []string{"She said no.", "Then she left."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNumeroAbbreviationNotABoundary(t *testing.T) {
	got := texts(collect([]string{"Please read No. 5 aloud. "}, true))
	want := []string{"Please read No. 5 aloud."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTrailingFlush(t *testing.T) {
	got := texts(collect([]string{"and then"}, true))
	want := []string{"and then"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBoundarySplitAcrossFragments(t *testing.T) {
	got := texts(collect([]string{"Hello world", ". ", "How are you?"}, true))
	want := []string{"Hello world.", "How are you?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEmitsBeforeFlush(t *testing.T) {
	var out []Sentence
	seg := New(func(s Sentence) { out = append(out, s) })
	seg.Push("First one. Second")
	if len(out) != 1 || out[0].Text != "First one." {
		t.Fatalf("expected the first sentence before flush, got %v", texts(out))
	}
	seg.Push(" still going! ")
	if len(out) != 2 || out[1].Text != "Second still going!" {
		t.Fatalf("expected second sentence after exclamation, got %v", texts(out))
	}
}

func TestIndicesContiguous(t *testing.T) {
	out := collect([]string{"One. Two. Three. "}, true)
	if len(out) != 3 {
		t.Fatalf("expected 3 sentences, got %d", len(out))
	}
	for i, s := range out {
		if s.Index != uint64(i) {
			t.Fatalf("expected index %d, got %d", i, s.Index)
		}
	}
}

func TestPrecedingHint(t *testing.T) {
	out := collect([]string{"One here. Two here. "}, true)
	if len(out) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(out))
	}
	if out[0].Preceding != "" {
		t.Fatalf("first sentence should have no preceding hint, got %q", out[0].Preceding)
	}
	if out[1].Preceding != "One here." {
		t.Fatalf("expected preceding hint %q, got %q", "One here.", out[1].Preceding)
	}
}

func TestEmptyStream(t *testing.T) {
	if out := collect([]string{"   "}, true); len(out) != 0 {
		t.Fatalf("expected no sentences from whitespace, got %v", texts(out))
	}
}

func TestPushAfterFlushIgnored(t *testing.T) {
	var out []Sentence
	seg := New(func(s Sentence) { out = append(out, s) })
	seg.Flush()
	seg.Push("too late. ")
	if len(out) != 0 {
		t.Fatalf("expected no sentences after flush, got %v", texts(out))
	}
}
