// Package codeparser implements the Code Parser port the Indexing Executor
// delegates chunking to. It is grounded on manifold's
// internal/rag/chunker.Chunker: the same
// strategy-by-heuristic approach (fixed/markdown/code), generalized to also
// report the per-chunk line range and a best-guess element type so the
// vector store can keep enough metadata to explain a match.
package codeparser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ElementType classifies what a chunk most likely represents.
type ElementType string

const (
	ElementFunction  ElementType = "function"
	ElementClass     ElementType = "class"
	ElementHeading   ElementType = "heading"
	ElementParagraph ElementType = "paragraph"
	ElementBlock     ElementType = "block" // fixed-size fallback
)

// Chunk is one parsed unit of a file: an element type, its line range,
// its content, and its language.
type Chunk struct {
	ElementType ElementType
	StartLine   int
	EndLine     int
	Content     string
	Language    string
}

// Options configures chunking, mirroring manifold's ChunkingOptions
// (Strategy/MaxTokens/Overlap) but keyed to a target byte size rather than
// an approximate token count, since the Indexing Executor only needs a
// consistent relative chunk size, not literal token accounting.
type Options struct {
	TargetBytes int // default 2048
	OverlapBytes int
}

// Parser is the Code Parser port: lazily not required here (Go channels
// would be an unjustified complication for file-sized inputs) — it returns
// the full ordered chunk sequence for one file.
type Parser interface {
	Parse(path string, content []byte) ([]Chunk, error)
}

// SimpleParser is the default Parser: language-agnostic heuristics, no
// external toolchain dependency, pluggable so a future tree-sitter-backed
// parser can replace it without touching the Indexing Executor.
type SimpleParser struct {
	Options Options
}

// NewSimpleParser returns a SimpleParser with sensible default chunk sizing.
func NewSimpleParser() *SimpleParser {
	return &SimpleParser{Options: Options{TargetBytes: 2048, OverlapBytes: 128}}
}

func (p *SimpleParser) targetBytes() int {
	if p.Options.TargetBytes > 0 {
		return p.Options.TargetBytes
	}
	return 2048
}

// Parse dispatches to a strategy by file extension, mirroring
// chunker.SimpleChunker.Chunk's strategy switch.
func (p *SimpleParser) Parse(path string, content []byte) ([]Chunk, error) {
	lang := LanguageForPath(path)
	text := string(content)
	switch {
	case lang == "markdown":
		return p.markdownChunks(text, lang), nil
	case isCodeLanguage(lang):
		return p.codeChunks(text, lang), nil
	default:
		return p.fixedChunks(text, lang, ElementBlock), nil
	}
}

var extToLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "shell",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
}

// LanguageForPath guesses a language name from a file extension, falling
// back to "text" for anything unrecognized.
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return "text"
}

func isCodeLanguage(lang string) bool {
	switch lang {
	case "go", "python", "javascript", "typescript", "java", "ruby", "rust", "c", "cpp", "csharp", "php":
		return true
	}
	return false
}

var codeBoundaryRe = regexp.MustCompile(`(?m)^\s*(func |class |def |public |private |protected |fn |impl |struct |interface )`)

// codeChunks groups lines into chunks that are cut only at
// function/class/struct boundary lines, and only once adding that line
// would push the running buffer past the target size, so one chunk can
// hold several small functions and a chunk with no boundary inside it can
// grow past the target. A chunk's element type comes from the boundary
// line that opened it (ElementBlock when none did).
func (p *SimpleParser) codeChunks(text, lang string) []Chunk {
	lines := strings.Split(text, "\n")
	var out []Chunk
	var buf strings.Builder
	bufStart := 1

	flush := func(endLine int, elementType ElementType) {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, Chunk{
				ElementType: elementType,
				StartLine:   bufStart,
				EndLine:     endLine,
				Content:     s,
				Language:    lang,
			})
		}
		buf.Reset()
	}

	currentType := ElementBlock
	for i, ln := range lines {
		lineNo := i + 1
		isBoundary := codeBoundaryRe.MatchString(ln)
		if isBoundary && buf.Len() > 0 && buf.Len()+len(ln)+1 > p.targetBytes() {
			flush(lineNo-1, currentType)
			bufStart = lineNo
			currentType = classifyBoundary(ln)
		} else if isBoundary && buf.Len() == 0 {
			currentType = classifyBoundary(ln)
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(ln)
	}
	flush(len(lines), currentType)
	return out
}

func classifyBoundary(line string) ElementType {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "class "), strings.HasPrefix(trimmed, "struct "), strings.HasPrefix(trimmed, "interface "):
		return ElementClass
	default:
		return ElementFunction
	}
}

var headingRe = regexp.MustCompile(`^#+\s`)

// markdownChunks splits on heading and paragraph boundaries, preserving
// headings as hard boundaries, mirroring chunker.markdownChunk.
func (p *SimpleParser) markdownChunks(text, lang string) []Chunk {
	lines := strings.Split(text, "\n")
	var out []Chunk
	var buf strings.Builder
	bufStart := 1
	elementType := ElementParagraph

	flush := func(endLine int) {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, Chunk{ElementType: elementType, StartLine: bufStart, EndLine: endLine, Content: s, Language: lang})
		}
		buf.Reset()
		elementType = ElementParagraph
	}

	for i, ln := range lines {
		lineNo := i + 1
		isHeading := headingRe.MatchString(ln)
		isParaBreak := strings.TrimSpace(ln) == "" && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != ""

		if isHeading && buf.Len() > 0 {
			flush(lineNo - 1)
			bufStart = lineNo
		}
		if isHeading {
			elementType = ElementHeading
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(ln)
		if (isHeading || isParaBreak) && buf.Len() >= p.targetBytes() {
			flush(lineNo)
			bufStart = lineNo + 1
		}
	}
	flush(len(lines))
	return out
}

// fixedChunks produces contiguous, roughly target-sized chunks with
// configurable overlap, mirroring chunker.fixedChunk; used for any file
// whose extension isn't recognized as code or markdown.
func (p *SimpleParser) fixedChunks(text, lang string, elementType ElementType) []Chunk {
	lineStarts := cumulativeLineStarts(text)
	tgt := p.targetBytes()
	overlap := p.Options.OverlapBytes
	if overlap < 0 || overlap >= tgt {
		overlap = 0
	}

	var out []Chunk
	start := 0
	for start < len(text) {
		end := start + tgt
		if end > len(text) {
			end = len(text)
		} else if i := strings.LastIndex(text[start:end], " "); i > tgt/2 {
			end = start + i
		}
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			out = append(out, Chunk{
				ElementType: elementType,
				StartLine:   lineForOffset(lineStarts, start),
				EndLine:     lineForOffset(lineStarts, end),
				Content:     chunk,
				Language:    lang,
			})
		}
		if end == len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func cumulativeLineStarts(text string) []int {
	starts := []int{0}
	for i, b := range text {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineForOffset(starts []int, offset int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// DebugKey renders a chunk's position as "path:start-end", a stable string
// used as the default vector-store point id suffix.
func DebugKey(path string, c Chunk) string {
	return path + ":" + strconv.Itoa(c.StartLine) + "-" + strconv.Itoa(c.EndLine)
}
