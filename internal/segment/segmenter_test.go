package segment

import "testing"

func TestPushFlushesOnSentenceBoundary(t *testing.T) {
	s := New(TierSentence)

	deltas := []string{"Hello", " world", "."}
	flushes := 0
	var got string
	for _, d := range deltas {
		if f, ok := s.Push(d); ok {
			flushes++
			got = f.Text
		}
	}

	if flushes != 1 {
		t.Fatalf("flushes = %d, want 1", flushes)
	}
	if got != "Hello world." {
		t.Fatalf("flush text = %q, want %q", got, "Hello world.")
	}
}

func TestPushAccumulatesWithoutDelimiter(t *testing.T) {
	s := New(TierSentence)

	for _, d := range []string{"Hello", " world"} {
		if _, ok := s.Push(d); ok {
			t.Fatalf("unexpected flush on delta %q", d)
		}
	}

	f, ok := s.Finish()
	if !ok {
		t.Fatalf("Finish() produced no flush")
	}
	if f.Text != "Hello world" {
		t.Fatalf("flush text = %q, want %q", f.Text, "Hello world")
	}
}

func TestSentenceTierIgnoresFragmentDelimiters(t *testing.T) {
	s := New(TierSentence)
	if _, ok := s.Push("First clause,"); ok {
		t.Fatalf("sentence tier flushed on comma")
	}
	if f, ok := s.Push(" then the rest."); !ok || f.Text != "First clause, then the rest." {
		t.Fatalf("flush = %+v ok=%v, want full sentence", f, ok)
	}
}

func TestFragmentTierFlushesOnClauseDelimiters(t *testing.T) {
	s := New(TierFragment)
	f, ok := s.Push("First clause,")
	if !ok {
		t.Fatalf("fragment tier did not flush on comma")
	}
	if f.Text != "First clause," {
		t.Fatalf("flush text = %q, want %q", f.Text, "First clause,")
	}
}

func TestUnspeakableBuffersNeverFlush(t *testing.T) {
	cases := []struct {
		name   string
		deltas []string
	}{
		{"empty", []string{""}},
		{"whitespace", []string{"   ", "\n"}},
		{"bare punctuation", []string{"."}},
		{"punctuation run", []string{"?!", "."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(TierSentence)
			for _, d := range tc.deltas {
				if f, ok := s.Push(d); ok {
					t.Fatalf("Push(%q) flushed %q", d, f.Text)
				}
			}
			if f, ok := s.Finish(); ok {
				t.Fatalf("Finish() flushed %q", f.Text)
			}
		})
	}
}

func TestFinishAfterFlushIsEmpty(t *testing.T) {
	s := New(TierSentence)
	if _, ok := s.Push("Done."); !ok {
		t.Fatalf("expected flush")
	}
	if f, ok := s.Finish(); ok {
		t.Fatalf("Finish() after flush produced %q", f.Text)
	}
}

func TestResetDropsBufferedText(t *testing.T) {
	s := New(TierSentence)
	s.Push("half a thought")
	s.Reset()
	if s.Pending() {
		t.Fatalf("Pending() = true after Reset")
	}
	if f, ok := s.Finish(); ok {
		t.Fatalf("Finish() after Reset produced %q", f.Text)
	}
}

func TestSpeakable(t *testing.T) {
	cases := map[string]bool{
		"":          false,
		"   ":       false,
		".":         false,
		"?!…":       false,
		"ok.":       true,
		"42":        true,
		" cloudy. ": true,
		"\nHello\n": true,
		"。":         false,
		"第二句。":      true,
	}
	for text, want := range cases {
		if got := Speakable(text); got != want {
			t.Fatalf("Speakable(%q) = %v, want %v", text, got, want)
		}
	}
}
