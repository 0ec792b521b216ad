// Package chunker splits engine output into size-bounded parts without losing track
// of fenced code blocks.
//
// The splitter is a two-state machine, Outside and Inside(language), driven by fence
// lines. A buffer is flushed when the next line would push it past the budget, and
// whenever a fence closes. Each chunk records the fence state before and after its
// body so the dispatcher can reopen and close fences that span a part boundary;
// the bodies themselves are exact slices of the input.
package chunker

import (
	"strings"
)

// FenceMarker opens and closes a fenced code block when it starts a line.
const FenceMarker = "```"

// Fence is the code-fence state at a point in the text.
type Fence struct {
	Open     bool
	Language string
}

// transition returns the state after line and whether line closed a fence.
func (f Fence) transition(line string) (Fence, bool) {
	if !strings.HasPrefix(line, FenceMarker) {
		return f, false
	}
	if f.Open {
		return Fence{}, true
	}
	return Fence{Open: true, Language: strings.TrimSpace(line[len(FenceMarker):])}, false
}

// Chunk is one part of the split output.
type Chunk struct {
	Index int // 1-based
	Total int
	Body  string

	Start Fence // state before Body; Open means Body continues a fence from the previous part
	End   Fence // state after Body; Open means the fence carries on into the next part

	// CodeBlockOpenAtEnd is set on the last chunk only, when the input itself
	// ended inside an unterminated fence. CodeLanguage is that fence's language.
	CodeBlockOpenAtEnd bool
	CodeLanguage       string
}

// Split partitions text into chunks whose bodies are at most maxChunkSize bytes.
// A single line longer than maxChunkSize is never cut; it becomes an oversized
// chunk of its own. Whitespace-only buffers are dropped. Lines are newline
// terminated in the output even when the final input line is not.
func Split(text string, maxChunkSize int) []Chunk {
	s := &splitter{max: maxChunkSize}
	for line := range strings.Lines(text) {
		s.feed(strings.TrimSuffix(line, "\n"))
	}
	s.flush()

	n := len(s.chunks)
	if n == 0 {
		return nil
	}
	for i := range s.chunks {
		s.chunks[i].Index = i + 1
		s.chunks[i].Total = n
	}
	if last := &s.chunks[n-1]; last.End.Open {
		last.CodeBlockOpenAtEnd = true
		last.CodeLanguage = last.End.Language
	}
	return s.chunks
}

type splitter struct {
	max    int
	start  Fence // state before the buffered lines
	state  Fence // state after the buffered lines
	buf    strings.Builder
	chunks []Chunk
}

func (s *splitter) feed(line string) {
	next, closed := s.state.transition(line)

	// Lines inside a fence reserve room for a bare closing fence.
	need := len(line) + 1
	if next.Open {
		need += len(FenceMarker) + 1
	}
	// Buffered lines always end in a newline, so a flush here breaks on a
	// complete line boundary whether or not a fence is open. A buffer already
	// holding an oversized line keeps its closer.
	if s.buf.Len() > 0 && s.buf.Len()+need > s.max && (!closed || s.buf.Len() <= s.max) {
		s.flush()
	}

	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
	s.state = next

	if closed {
		s.flush()
	}
}

func (s *splitter) flush() {
	body := s.buf.String()
	s.buf.Reset()
	if strings.TrimSpace(body) != "" {
		s.chunks = append(s.chunks, Chunk{Body: body, Start: s.start, End: s.state})
	}
	s.start = s.state
}
