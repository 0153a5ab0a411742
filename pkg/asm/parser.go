// Package asm assembles SVM assembly text into resolved instructions.
// The grammar is defined as Go structs with participle tags.
package asm

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Program is the top-level AST node
type Program struct {
	Lines []*Line `EOL* ( @@ EOL* )*`
}

// Line is a label definition or a statement
type Line struct {
	Pos       lexer.Position
	Label     *Label     `  @@`
	Statement *Statement `| @@`
}

// Label: name ":"
type Label struct {
	Name string `@Ident ":"`
}

// Statement: mnemonic operand*
type Statement struct {
	Pos      lexer.Position
	Mnemonic string     `@Ident`
	Operands []*Operand `( @@ ","? )*`
}

// Operand: register | off(register) | integer | label
type Operand struct {
	Pos      lexer.Position
	Register *string  `  @Register`
	Address  *Address `| @@`
	Int      *string  `| @Int`
	Label    *string  `| @Ident`
}

// Address: off(register), off defaults to 0
type Address struct {
	Offset *string `@Int? "("`
	Base   string  `@Register ")"`
}

// SVM assembly lexer definition
var svmLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments run to end of line; generated code uses ';'
	{Name: "Comment", Pattern: `[;#][^\n]*`},
	{Name: "EOL", Pattern: `\n`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},

	{Name: "Register", Pattern: `\$[a-zA-Z][a-zA-Z0-9]*`},
	{Name: "Int", Pattern: `[-+]?[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_.][a-zA-Z0-9_.]*`},
	{Name: "Punct", Pattern: `[():,]`},
})

// Parser is the SVM assembly parser
var Parser = participle.MustBuild[Program](
	participle.Lexer(svmLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse parses assembly source into a Program AST
func Parse(source string) (*Program, error) {
	return ParseNamed("", source)
}

// ParseNamed parses source, reporting positions against filename
func ParseNamed(filename, source string) (*Program, error) {
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return Parser.ParseString(filename, source)
}
