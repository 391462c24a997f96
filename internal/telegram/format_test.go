package telegram

import (
	"strings"
	"testing"
)

func TestFormatHTMLEscapesAndConverts(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"**bold** words", "<b>bold</b> words"},
		{"some `code` here", "some <code>code</code> here"},
		{"~~gone~~", "<s>gone</s>"},
		{"__under__", "<u>under</u>"},
		{"[link](https://example.com)", `<a href="https://example.com">link</a>`},
	}
	for _, tt := range tests {
		if got := FormatHTML(tt.in); got != tt.want {
			t.Errorf("FormatHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatHTMLBlockquoteBecomesPre(t *testing.T) {
	in := "<blockquote>[2026-01-01] User: piano & things</blockquote>\n\nRight, you mentioned that!"
	got := FormatHTML(in)

	if !strings.Contains(got, "<pre>[2026-01-01] User: piano &amp; things</pre>") {
		t.Errorf("blockquote not converted to escaped pre:\n%s", got)
	}
	if strings.Contains(got, "blockquote") {
		t.Errorf("raw blockquote tag leaked:\n%s", got)
	}
}

func TestSplitSegmentsParagraphs(t *testing.T) {
	segments := SplitSegments("first paragraph\n\nsecond paragraph", 100)
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0] != "first paragraph" || segments[1] != "second paragraph" {
		t.Errorf("segments = %v", segments)
	}
}

func TestSplitSegmentsKeepsPreIntact(t *testing.T) {
	pre := "<pre>" + strings.Repeat("x", 50) + "</pre>"
	text := "before\n\n" + pre + "\n\nafter"

	segments := SplitSegments(text, 30)
	var foundPre bool
	for _, s := range segments {
		if s == pre {
			foundPre = true
		}
		if strings.Contains(s, "<pre>") && s != pre {
			t.Errorf("pre block was split: %q", s)
		}
	}
	if !foundPre {
		t.Errorf("pre block missing from segments: %v", segments)
	}
}

func TestSplitSegmentsLongParagraph(t *testing.T) {
	long := strings.Repeat("word ", 50) // 250 chars
	segments := SplitSegments(long, 100)

	if len(segments) < 3 {
		t.Fatalf("got %d segments for 250 chars at limit 100", len(segments))
	}
	for _, s := range segments {
		if len(s) > 100 {
			t.Errorf("segment exceeds limit: %d chars", len(s))
		}
	}
	if strings.Join(segments, " ") != strings.TrimSpace(long) {
		t.Error("content lost while splitting")
	}
}

func TestSplitSegmentsEmpty(t *testing.T) {
	if got := SplitSegments("", 100); len(got) != 0 {
		t.Errorf("empty input produced %v", got)
	}
	if got := SplitSegments("\n\n\n\n", 100); len(got) != 0 {
		t.Errorf("whitespace input produced %v", got)
	}
}
