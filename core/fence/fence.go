// Package fence parses fenced-block info strings and view invocations.
//
// A float fence opens with a class of the form "type:label", optionally
// followed by a caption:
//
//	plantuml:fig:arch Architecture overview
//
// The first colon-separated segment is the float type; the remaining
// segments form the label. A view invocation uses the reserved "view"
// type with an optional parenthesized parameter:
//
//	view:objects(type=requirement)
package fence

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/specweave/specweave/core/errors"
)

// ViewType is the reserved fence type that introduces a view invocation.
const ViewType = "view"

// Info is a parsed fence info string.
type Info struct {
	// Type is the float (or view) type identifier.
	Type string

	// Label is the reference label, empty when the class has a single
	// segment.
	Label string

	// Caption is the display caption following the class.
	Caption string

	// Param is the parenthesized parameter of a view invocation, empty
	// otherwise.
	Param string
}

// IsView reports whether the fence is a view invocation.
func (i *Info) IsView() bool {
	return i.Type == ViewType
}

// ViewName returns the invoked view type for view fences.
func (i *Info) ViewName() string {
	if !i.IsView() {
		return ""
	}
	return i.Label
}

var infoLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Colon", Pattern: `:`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Word", Pattern: `[^\s:()]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// infoAST is the raw grammar shape.
type infoAST struct {
	Head    []string  `parser:"@Word (Colon @Word)*"`
	Param   *paramAST `parser:"@@?"`
	Caption []string  `parser:"( @Word | @Colon )*"`
}

type paramAST struct {
	Parts []string `parser:"LParen ( @Word | @Colon )* RParen"`
}

var infoParser = participle.MustBuild[infoAST](
	participle.Lexer(infoLexer),
	participle.Elide("Whitespace"),
)

// Parse parses a fence info string. An empty or malformed info string is
// a ParseError; callers treat such fences as plain code blocks.
func Parse(info string) (*Info, error) {
	trimmed := strings.TrimSpace(info)
	if trimmed == "" {
		return nil, errors.NewParse("fence", "", "empty info string")
	}

	ast, err := infoParser.ParseString("", trimmed)
	if err != nil {
		return nil, errors.NewParse("fence", "", err.Error())
	}

	out := &Info{Type: ast.Head[0]}
	if len(ast.Head) > 1 {
		out.Label = strings.Join(ast.Head[1:], ":")
	}
	if ast.Param != nil {
		out.Param = joinTokens(ast.Param.Parts)
	}
	out.Caption = joinTokens(ast.Caption)
	return out, nil
}

// joinTokens rebuilds text from word and colon tokens. Colons attach to
// their neighbors; words are space-separated.
func joinTokens(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 && p != ":" && parts[i-1] != ":" {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}
