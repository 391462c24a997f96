package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// maxSegmentLen stays under Telegram's 4096-character message limit.
const maxSegmentLen = 4000

var (
	blockquoteRe  = regexp.MustCompile(`(?is)<\s*blockquote[^>]*>(.*?)<\s*/\s*blockquote\s*>`)
	placeholderRe = regexp.MustCompile(`BLOCKQUOTEPLACEHOLDER(\d+)END`)

	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe = regexp.MustCompile(`(^|[^*])\*([^*]+?)\*($|[^*])`)
	underRe  = regexp.MustCompile(`__(.+?)__`)
	codeRe   = regexp.MustCompile("`([^`]+?)`")
	strikeRe = regexp.MustCompile(`~~(.+?)~~`)
	linkRe   = regexp.MustCompile(`\[([^\]]+?)\]\(([^)]+?)\)`)

	preSplitRe = regexp.MustCompile(`(?s)(<pre>.*?</pre>)`)
)

// FormatHTML renders assistant text as Telegram HTML. The model's
// blockquote citations become <pre> blocks; everything else is escaped,
// then markdown-lite markers are converted to HTML tags.
func FormatHTML(text string) string {
	// Pull blockquotes out before escaping so their content survives as
	// preformatted blocks.
	var quotes []string
	text = blockquoteRe.ReplaceAllStringFunc(text, func(m string) string {
		content := strings.TrimSpace(blockquoteRe.FindStringSubmatch(m)[1])
		quotes = append(quotes, content)
		return fmt.Sprintf("BLOCKQUOTEPLACEHOLDER%dEND", len(quotes)-1)
	})

	escaped := html.EscapeString(text)

	escaped = boldRe.ReplaceAllString(escaped, "<b>$1</b>")
	escaped = underRe.ReplaceAllString(escaped, "<u>$1</u>")
	escaped = italicRe.ReplaceAllString(escaped, "$1<i>$2</i>$3")
	escaped = codeRe.ReplaceAllString(escaped, "<code>$1</code>")
	escaped = strikeRe.ReplaceAllString(escaped, "<s>$1</s>")
	escaped = linkRe.ReplaceAllString(escaped, `<a href="$2">$1</a>`)

	return placeholderRe.ReplaceAllStringFunc(escaped, func(m string) string {
		idx := placeholderRe.FindStringSubmatch(m)[1]
		var i int
		fmt.Sscanf(idx, "%d", &i)
		if i < 0 || i >= len(quotes) {
			return ""
		}
		return "<pre>" + html.EscapeString(quotes[i]) + "</pre>"
	})
}

// SplitSegments breaks formatted text into message-sized segments.
// <pre> blocks are kept intact as their own segments; regular text
// splits on paragraph boundaries, then on line or word boundaries when a
// paragraph alone exceeds the limit.
func SplitSegments(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = maxSegmentLen
	}

	var segments []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			segments = append(segments, s)
		}
	}

	addParagraphs := func(s string) {
		for _, para := range strings.Split(s, "\n\n") {
			for _, piece := range splitLong(para, maxLen) {
				add(piece)
			}
		}
	}

	last := 0
	for _, loc := range preSplitRe.FindAllStringIndex(text, -1) {
		addParagraphs(text[last:loc[0]])
		add(text[loc[0]:loc[1]]) // <pre> blocks stay intact
		last = loc[1]
	}
	addParagraphs(text[last:])

	return segments
}

// splitLong chops content at the last newline or space before the limit.
func splitLong(content string, limit int) []string {
	content = strings.TrimSpace(content)
	if len(content) <= limit {
		return []string{content}
	}

	var chunks []string
	remaining := content
	for len(remaining) > limit {
		window := remaining[:limit]
		cut := strings.LastIndexByte(window, '\n')
		if sp := strings.LastIndexByte(window, ' '); sp > cut {
			cut = sp
		}
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimSpace(remaining[:cut]))
		remaining = strings.TrimSpace(remaining[cut:])
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
