package chunk

import (
	"strings"
)

// Options configures Split's target sizes. Zero values take spec.md §3's
// defaults.
type Options struct {
	MaxTokens int
	MinTokens int
	OverlapPct int
}

func (o Options) withDefaults() Options {
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.MinTokens == 0 {
		o.MinTokens = DefaultMinTokens
	}
	if o.OverlapPct == 0 {
		o.OverlapPct = DefaultOverlapPct
	}
	return o
}

// Split produces overlapping, line-bounded chunks from content, targeting
// Options.MaxTokens per chunk (approximated via TokensPerChar) with the
// last OverlapPct of lines repeated at the start of the next chunk so a
// symbol split across a chunk boundary still has surrounding context in at
// least one chunk. This is the one chunking strategy rather than an
// AST-parse fallback, since Chunk production no longer depends on a
// successful AST parse (see internal/plugin's split rationale in
// DESIGN.md).
func Split(relativePath string, content []byte, opts Options) []Chunk {
	opts = opts.withDefaults()
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil
	}

	lines := strings.Split(string(content), "\n")
	maxChars := opts.MaxTokens * TokensPerChar
	minChars := opts.MinTokens * TokensPerChar
	overlapLines := maxLinesForChars(lines, 0, (maxChars*opts.OverlapPct)/100)

	var chunks []Chunk
	start := 0
	index := 0
	for start < len(lines) {
		end := growToCharBudget(lines, start, maxChars)
		// Don't leave a tiny trailing chunk behind: if the remainder is
		// shorter than minChars, fold it into this one.
		if end < len(lines) {
			if remainder := charLen(lines[end:]); remainder > 0 && remainder < minChars {
				end = len(lines)
			}
		}

		text := strings.Join(lines[start:end], "\n")
		chunks = append(chunks, Chunk{
			RelativePath: relativePath,
			StartLine:    start + 1,
			EndLine:      end,
			Text:         text,
			ChunkHash:    hashText(text),
			Index:        index,
		})
		index++

		if end >= len(lines) {
			break
		}
		next := end - overlapLines
		if next <= start {
			next = start + 1 // always make forward progress even with a large overlap window
		}
		start = next
	}
	return chunks
}

// growToCharBudget returns the line index (exclusive) such that
// lines[start:idx] stays within maxChars, always including at least one
// line so a single very long line still produces a chunk.
func growToCharBudget(lines []string, start, maxChars int) int {
	total := 0
	i := start
	for ; i < len(lines); i++ {
		lineLen := len(lines[i]) + 1 // +1 for the newline Join would have added
		if i > start && total+lineLen > maxChars {
			break
		}
		total += lineLen
	}
	if i == start {
		i = start + 1
	}
	return i
}

// maxLinesForChars returns how many trailing lines of lines[start:] fit
// within charBudget, used to size the overlap window.
func maxLinesForChars(lines []string, start, charBudget int) int {
	if charBudget <= 0 {
		return 0
	}
	total := 0
	n := 0
	for i := len(lines) - 1; i >= start; i-- {
		total += len(lines[i]) + 1
		if total > charBudget {
			break
		}
		n++
	}
	return n
}

func charLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n
}
