package chunker

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
)

func bodies(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Body
	}
	return out
}

func TestSplit_SingleChunk(t *testing.T) {
	chunks := Split("hello\nworld\n", 2000)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Body != "hello\nworld\n" {
		t.Errorf("body = %q", c.Body)
	}
	if c.Index != 1 || c.Total != 1 {
		t.Errorf("index/total = %d/%d, want 1/1", c.Index, c.Total)
	}
	if c.Start.Open || c.End.Open || c.CodeBlockOpenAtEnd {
		t.Errorf("expected no fence state, got %+v", c)
	}
}

func TestSplit_FinalLineWithoutNewline(t *testing.T) {
	chunks := Split("hello\nworld", 2000)
	if len(chunks) != 1 || chunks[0].Body != "hello\nworld\n" {
		t.Errorf("expected trailing line to be kept and terminated, got %q", bodies(chunks))
	}
}

func TestSplit_Empty(t *testing.T) {
	for _, in := range []string{"", "\n", "   \n\t\n"} {
		if chunks := Split(in, 2000); len(chunks) != 0 {
			t.Errorf("Split(%q): expected no chunks, got %q", in, bodies(chunks))
		}
	}
}

func TestSplit_FenceSplitMidBlock(t *testing.T) {
	chunks := Split("```go\nfmt.Println(1)\n```\n", 10)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), bodies(chunks))
	}

	first, last := chunks[0], chunks[1]
	if first.Body != "```go\n" {
		t.Errorf("first body = %q", first.Body)
	}
	if first.Start.Open {
		t.Error("first chunk should start outside a fence")
	}
	if !first.End.Open || first.End.Language != "go" {
		t.Errorf("first chunk should end inside a go fence, got %+v", first.End)
	}

	if last.Body != "fmt.Println(1)\n```\n" {
		t.Errorf("last body = %q", last.Body)
	}
	if !last.Start.Open || last.Start.Language != "go" {
		t.Errorf("last chunk should continue the go fence, got %+v", last.Start)
	}
	if last.End.Open || last.CodeBlockOpenAtEnd {
		t.Errorf("last chunk should close the fence, got %+v", last)
	}
	if strings.Join(bodies(chunks), "") != "```go\nfmt.Println(1)\n```\n" {
		t.Error("bodies do not reassemble to the input")
	}
}

func TestSplit_ClosingFenceFlushes(t *testing.T) {
	in := "intro\n```sh\nls\n```\nafter\n"
	chunks := Split(in, 2000)

	want := []string{"intro\n```sh\nls\n```\n", "after\n"}
	got := bodies(chunks)
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
	if chunks[1].Start.Open {
		t.Error("chunk after a closed fence should start outside")
	}
}

func TestSplit_UnterminatedFence(t *testing.T) {
	chunks := Split("summary\n```python\nprint(1)\n", 2000)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if !c.CodeBlockOpenAtEnd {
		t.Error("expected CodeBlockOpenAtEnd on the last chunk")
	}
	if c.CodeLanguage != "python" {
		t.Errorf("CodeLanguage = %q, want python", c.CodeLanguage)
	}
}

func TestSplit_UnterminatedFenceOnlyLastMarked(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("```\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "line %02d\n", i)
	}
	chunks := Split(sb.String(), 50)

	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks[:len(chunks)-1] {
		if c.CodeBlockOpenAtEnd {
			t.Errorf("chunk %d marked open at end but is not last", c.Index)
		}
		if !c.End.Open {
			t.Errorf("chunk %d should end inside the fence", c.Index)
		}
	}
	last := chunks[len(chunks)-1]
	if !last.CodeBlockOpenAtEnd || last.CodeLanguage != "" {
		t.Errorf("last chunk = %+v", last)
	}
}

func TestSplit_FenceLanguageTrimmed(t *testing.T) {
	chunks := Split("```  rust  \nfn main() {}\n", 2000)
	if len(chunks) != 1 || chunks[0].CodeLanguage != "rust" {
		t.Errorf("expected language rust, got %+v", chunks)
	}
}

func TestSplit_OversizedLineKeptWhole(t *testing.T) {
	long := strings.Repeat("x", 50)
	chunks := Split("short\n"+long+"\ntail\n", 20)

	want := []string{"short\n", long + "\n", "tail\n"}
	got := bodies(chunks)
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_ClosingFenceStaysWithinBudget(t *testing.T) {
	const max = 10
	for n := max - 4; n < max; n++ {
		t.Run(fmt.Sprintf("line %d", n), func(t *testing.T) {
			in := "```\n" + strings.Repeat("1", n) + "\n```\n"
			chunks := Split(in, max)
			for _, c := range chunks {
				if len(c.Body) > max {
					t.Errorf("chunk %d is %d bytes: %q", c.Index, len(c.Body), c.Body)
				}
			}
			if strings.Join(bodies(chunks), "") != in {
				t.Errorf("bodies do not reassemble: %q", bodies(chunks))
			}
			last := chunks[len(chunks)-1]
			if last.End.Open || last.CodeBlockOpenAtEnd {
				t.Errorf("last chunk should close the fence, got %+v", last)
			}
		})
	}
}

func TestSplit_CloserAloneWhenBufferFull(t *testing.T) {
	chunks := Split("```\n12345678\n```\n", 10)

	want := []string{"```\n", "12345678\n", "```\n"}
	got := bodies(chunks)
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
	if !chunks[2].Start.Open || chunks[2].End.Open {
		t.Errorf("closer chunk should continue and close the fence, got %+v", chunks[2])
	}
}

func TestSplit_DropsWhitespaceBuffers(t *testing.T) {
	long := strings.Repeat("y", 30)
	chunks := Split("   \n"+long+"\n", 20)

	if len(chunks) != 1 || chunks[0].Body != long+"\n" {
		t.Errorf("expected whitespace buffer dropped, got %q", bodies(chunks))
	}
}

func TestSplit_IndexAndTotal(t *testing.T) {
	chunks := Split("aaaa\nbbbb\ncccc\n", 6)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i+1 || c.Total != 3 {
			t.Errorf("chunk %d: index/total = %d/%d", i, c.Index, c.Total)
		}
	}
}

func TestFenceTransition(t *testing.T) {
	tests := []struct {
		name       string
		from       Fence
		line       string
		want       Fence
		wantClosed bool
	}{
		{"plain outside", Fence{}, "text", Fence{}, false},
		{"plain inside", Fence{Open: true, Language: "go"}, "x := 1", Fence{Open: true, Language: "go"}, false},
		{"open with language", Fence{}, "```go", Fence{Open: true, Language: "go"}, false},
		{"open bare", Fence{}, "```", Fence{Open: true}, false},
		{"close", Fence{Open: true, Language: "go"}, "```", Fence{}, true},
		{"indented is not a fence", Fence{}, "  ```go", Fence{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, closed := tt.from.transition(tt.line)
			if got != tt.want || closed != tt.wantClosed {
				t.Errorf("transition(%q) = %+v, %v; want %+v, %v", tt.line, got, closed, tt.want, tt.wantClosed)
			}
		})
	}
}

// TestSplit_Laws checks the size bound, reassembly, and non-empty bodies on
// generated documents mixing prose and balanced fences.
func TestSplit_Laws(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 200; round++ {
		max := 40 + rng.IntN(200)
		text := generateDoc(rng, max)

		chunks := Split(text, max)

		var sb strings.Builder
		for _, c := range chunks {
			if len(c.Body) > max {
				t.Fatalf("round %d: chunk %d is %d bytes, budget %d", round, c.Index, len(c.Body), max)
			}
			if strings.TrimSpace(c.Body) == "" {
				t.Fatalf("round %d: chunk %d is blank", round, c.Index)
			}
			if c.CodeBlockOpenAtEnd {
				t.Fatalf("round %d: balanced input marked open at end", round)
			}
			sb.WriteString(c.Body)
		}
		if sb.String() != text {
			t.Fatalf("round %d: reassembly mismatch", round)
		}
		for i := 1; i < len(chunks); i++ {
			if chunks[i].Start != chunks[i-1].End {
				t.Fatalf("round %d: fence state discontinuity between %d and %d", round, i, i+1)
			}
		}
	}
}

func generateDoc(rng *rand.Rand, max int) string {
	var sb strings.Builder
	langs := []string{"", "go", "python", "json"}
	for para := 0; para < 3+rng.IntN(8); para++ {
		if rng.IntN(3) == 0 {
			sb.WriteString(FenceMarker + langs[rng.IntN(len(langs))] + "\n")
			for i := 0; i < 1+rng.IntN(10); i++ {
				n := 1 + rng.IntN(max/3)
				if rng.IntN(4) == 0 {
					n = max - 4 + rng.IntN(4)
				}
				sb.WriteString(word(rng, n) + "\n")
			}
			sb.WriteString(FenceMarker + "\n")
			continue
		}
		for i := 0; i < 1+rng.IntN(6); i++ {
			sb.WriteString(word(rng, 1+rng.IntN(max/2)) + "\n")
		}
	}
	return sb.String()
}

func word(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rng.IntN(26))
	}
	return string(b)
}
