package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// declPattern recognises a declaration keyword at the start of a line
type declPattern struct {
	re   *regexp.Regexp
	kind types.ChunkKind
}

var (
	exportPrefix = regexp.MustCompile(`^export\s+(?:default\s+)?`)

	braceDecls = []declPattern{
		{regexp.MustCompile(`^func\s+(?:\(\s*(?:[A-Za-z_]\w*\s+)?\*?\s*([A-Za-z_]\w*)[^)]*\)\s*)?([A-Za-z_]\w*)`), types.KindFunction},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+struct\b`), types.KindClass},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)(?:\[[^\]]*\])?\s+interface\b`), types.KindInterface},
		{regexp.MustCompile(`^(?:declare\s+)?(?:abstract\s+)?class\b\s*([A-Za-z_$][\w$]*)?`), types.KindClass},
		{regexp.MustCompile(`^(?:async\s+)?function\b\s*\*?\s*([A-Za-z_$][\w$]*)?`), types.KindFunction},
		{regexp.MustCompile(`^(?:declare\s+)?interface\s+([A-Za-z_$][\w$]*)`), types.KindInterface},
		{regexp.MustCompile(`^(?:declare\s+)?(?:const\s+)?enum\s+([A-Za-z_$][\w$]*)`), types.KindEnum},
		{regexp.MustCompile(`^(?:declare\s+)?type\s+([A-Za-z_$][\w$]*)`), types.KindTypeAlias},
		{regexp.MustCompile(`^(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*(?::[^=]+)?=>|[A-Za-z_$][\w$]*\s*=>)`), types.KindFunction},
	}

	exportedBinding = regexp.MustCompile(`^(?:const|let|var)\s+([A-Za-z_$][\w$]*)`)

	indentDecls = []declPattern{
		{regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)`), types.KindFunction},
		{regexp.MustCompile(`^class\s+([A-Za-z_]\w*)`), types.KindClass},
	}
)

// BraceHeuristic finds top-level declarations by keyword and measures their
// extent by tracking brace depth. Used when no grammar parsed the file.
type BraceHeuristic struct{}

func (BraceHeuristic) Name() string {
	return "brace-heuristic"
}

func (BraceHeuristic) TryExtract(ctx context.Context, content []byte, path string) ([]types.CodeChunk, error) {
	src := string(content)
	lines := splitLines(src)

	var chunks []types.CodeChunk
	for i := 0; i < len(lines); i++ {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		ln := lines[i]
		text := src[ln.start:ln.end]
		kind, name, ok := matchBraceDecl(text)
		if !ok {
			continue
		}

		end := scanBraceExtent(src, ln.start)
		if !validRange(ln.start, end, len(src)) {
			continue
		}
		chunks = append(chunks, types.CodeChunk{
			Kind:       kind,
			Name:       nameOrAnonymous(name),
			Code:       strings.TrimRight(src[ln.start:end], " \t\r\n"),
			SourcePath: path,
		})

		// resume after the line holding the end of this declaration
		for i+1 < len(lines) && lines[i+1].start < end {
			i++
		}
	}

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

// matchBraceDecl only accepts declarations starting in column zero
func matchBraceDecl(line string) (types.ChunkKind, string, bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return "", "", false
	}

	rest := line
	exported := false
	if loc := exportPrefix.FindStringIndex(line); loc != nil {
		exported = true
		rest = line[loc[1]:]
	}

	for _, p := range braceDecls {
		m := p.re.FindStringSubmatch(rest)
		if m == nil {
			continue
		}
		name := lastGroup(m)
		if p.kind == types.KindFunction && strings.HasPrefix(rest, "func") && len(m) == 3 && m[1] != "" {
			name = m[1] + "." + m[2]
		}
		if exported {
			return types.KindExportedDeclaration, name, true
		}
		return p.kind, name, true
	}

	if exported {
		var name string
		if m := exportedBinding.FindStringSubmatch(rest); m != nil {
			name = m[1]
		}
		return types.KindExportedDeclaration, name, true
	}
	return "", "", false
}

// scanBraceExtent returns the end offset of the declaration starting at start.
// Strings and comments are skipped so braces inside them do not count.
func scanBraceExtent(src string, start int) int {
	var (
		depth, parens int
		opened        bool
		quote         byte
		lineComment   bool
		blockComment  bool
		last          byte
	)

	for i := start; i < len(src); i++ {
		c := src[i]
		switch {
		case lineComment:
			if c == '\n' {
				lineComment = false
				if !opened && parens == 0 && endsDeclaration(src, i, last) {
					return i
				}
			}
			continue
		case blockComment:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				blockComment = false
				i++
			}
			continue
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote || (c == '\n' && quote != '`') {
				quote = 0
			}
			continue
		}

		switch c {
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				lineComment = true
				continue
			}
			if i+1 < len(src) && src[i+1] == '*' {
				blockComment = true
				i++
				continue
			}
		case '"', '\'', '`':
			quote = c
		case '(', '[':
			parens++
		case ')', ']':
			if parens > 0 {
				parens--
			}
		case '{':
			depth++
			opened = true
		case '}':
			depth--
			if opened && depth <= 0 {
				return i + 1
			}
		case ';':
			if !opened && parens == 0 {
				return i + 1
			}
		case '\n':
			if !opened && parens == 0 && endsDeclaration(src, i, last) {
				return i
			}
		}
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			last = c
		}
	}
	return len(src)
}

// endsDeclaration decides whether a newline before any brace closes a
// body-less declaration such as `type ID = string`
func endsDeclaration(src string, nl int, last byte) bool {
	if strings.IndexByte("=,(|&:<>+-*.", last) >= 0 {
		return false
	}
	for j := nl + 1; j < len(src); j++ {
		switch src[j] {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return false
		default:
			return true
		}
	}
	return true
}

// IndentHeuristic finds top-level def/class blocks in whitespace-delimited
// sources. A block ends at the first later line indented at or below the
// declaration that is neither blank, a comment, nor a closing bracket of a
// multi-line signature.
type IndentHeuristic struct{}

func (IndentHeuristic) Name() string {
	return "indent-heuristic"
}

func (IndentHeuristic) TryExtract(ctx context.Context, content []byte, path string) ([]types.CodeChunk, error) {
	src := string(content)
	lines := splitLines(src)

	base := -1
	for _, ln := range lines {
		text := src[ln.start:ln.end]
		if isBlank(text) || isComment(text) {
			continue
		}
		base = indentOf(text)
		break
	}
	if base < 0 {
		return nil, ErrNoChunks
	}

	var chunks []types.CodeChunk
	for i := 0; i < len(lines); i++ {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		text := src[lines[i].start:lines[i].end]
		if isBlank(text) || indentOf(text) != base {
			continue
		}

		first := i
		decl := i
		for decl < len(lines) && strings.HasPrefix(strings.TrimSpace(src[lines[decl].start:lines[decl].end]), "@") {
			decl++
		}
		if decl >= len(lines) {
			break
		}

		declText := src[lines[decl].start:lines[decl].end]
		if indentOf(declText) != base {
			continue
		}
		kind, name, ok := matchIndentDecl(strings.TrimLeft(declText, " \t"))
		if !ok {
			continue
		}

		last := decl
		for j := decl + 1; j < len(lines); j++ {
			lt := src[lines[j].start:lines[j].end]
			if isBlank(lt) {
				continue
			}
			if indentOf(lt) <= base && !isComment(lt) && !isClosingContinuation(lt) {
				break
			}
			if !isComment(lt) || indentOf(lt) > base {
				last = j
			}
		}

		start, end := lines[first].start, lines[last].end
		if !validRange(start, end, len(src)) {
			continue
		}
		chunks = append(chunks, types.CodeChunk{
			Kind:       kind,
			Name:       nameOrAnonymous(name),
			Code:       src[start:end],
			SourcePath: path,
		})
		i = last
	}

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	return chunks, nil
}

func matchIndentDecl(line string) (types.ChunkKind, string, bool) {
	for _, p := range indentDecls {
		if m := p.re.FindStringSubmatch(line); m != nil {
			return p.kind, m[1], true
		}
	}
	return "", "", false
}

// lineSpan is a line's byte range, newline excluded
type lineSpan struct {
	start, end int
}

func splitLines(src string) []lineSpan {
	var lines []lineSpan
	start := 0
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			end := i
			if end > start && src[end-1] == '\r' {
				end--
			}
			lines = append(lines, lineSpan{start: start, end: end})
			start = i + 1
		}
	}
	if start < len(src) {
		lines = append(lines, lineSpan{start: start, end: len(src)})
	}
	return lines
}

// indentOf counts leading whitespace, tabs advancing to the next multiple of 8
func indentOf(line string) int {
	n := 0
	for _, c := range line {
		switch c {
		case ' ':
			n++
		case '\t':
			n += 8 - n%8
		default:
			return n
		}
	}
	return n
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

func isClosingContinuation(line string) bool {
	t := strings.TrimSpace(line)
	return t != "" && strings.IndexByte(")]}", t[0]) >= 0
}

func lastGroup(m []string) string {
	for i := len(m) - 1; i >= 1; i-- {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}
