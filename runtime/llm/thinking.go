package llm

import "strings"

// ThinkSplitter scans a raw text delta stream for paired <think>…</think>
// markers and re-homes their content onto the thinking channel, for
// providers/models that emit reasoning inline in the text stream rather
// than as a distinct channel (e.g. local DeepSeek-style models served
// through the OpenAI adapter). Providers whose SDK already exposes a
// distinct thinking channel (Anthropic's ThinkingDelta) bypass this and
// emit ChunkThinking directly; this is only for the inline-marker case
// (SPEC_FULL.md §4.3).
type ThinkSplitter struct {
	inThink bool
	buf     strings.Builder
}

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// Feed processes one raw text delta and returns the chunks to emit: zero or
// more text/thinking chunks, in the order their content should be surfaced.
// Markers split across delta boundaries are handled via the internal
// buffer.
func (s *ThinkSplitter) Feed(delta string) []Chunk {
	s.buf.WriteString(delta)
	raw := s.buf.String()
	s.buf.Reset()

	var out []Chunk
	for {
		if !s.inThink {
			idx := strings.Index(raw, openTag)
			if idx < 0 {
				// No open tag: everything but a possible partial prefix of
				// openTag at the tail is safe to emit as text.
				safe, remainder := splitSafeTail(raw, openTag)
				if safe != "" {
					out = append(out, Chunk{Kind: ChunkText, Delta: safe})
				}
				s.buf.WriteString(remainder)
				return out
			}
			if idx > 0 {
				out = append(out, Chunk{Kind: ChunkText, Delta: raw[:idx]})
			}
			raw = raw[idx+len(openTag):]
			s.inThink = true
			continue
		}

		idx := strings.Index(raw, closeTag)
		if idx < 0 {
			safe, remainder := splitSafeTail(raw, closeTag)
			if safe != "" {
				out = append(out, Chunk{Kind: ChunkThinking, Delta: safe})
			}
			s.buf.WriteString(remainder)
			return out
		}
		if idx > 0 {
			out = append(out, Chunk{Kind: ChunkThinking, Delta: raw[:idx]})
		}
		raw = raw[idx+len(closeTag):]
		s.inThink = false
	}
}

// splitSafeTail returns the prefix of s that cannot possibly be the start
// of marker, and the suffix that might still grow into it on the next Feed
// call.
func splitSafeTail(s, marker string) (safe, remainder string) {
	maxOverlap := len(marker) - 1
	if maxOverlap > len(s) {
		maxOverlap = len(s)
	}
	for n := maxOverlap; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return s[:len(s)-n], s[len(s)-n:]
		}
	}
	return s, ""
}
