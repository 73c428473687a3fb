package dub

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	typeUnknown tokenType = iota
	typeInt
	typeFloat
	typeIdentifier
	typeString
	typeQuote
	typeComma
	typeColon
	typeSlash
	typeAsterisk
	typeSemicolon
	typeEOF
)

const eof = -1

// commentChar starts a comment running to the end of the line. Inside a word
// it is an ordinary character, as in C#4.
const commentChar = '#'

var punctuation = map[rune]tokenType{
	'\'': typeQuote,
	',':  typeComma,
	':':  typeColon,
	'/':  typeSlash,
	'*':  typeAsterisk,
	';':  typeSemicolon,
}

// token is a lexeme of a command line. pos is the byte offset of its first character.
type token struct {
	typ  tokenType
	pos  int
	text string
}

func (t token) String() string {
	if t.typ == typeEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

// SyntaxError is returned for input that can't be lexed or parsed. Pos is a
// byte offset into the line.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}

// lexer scans a line into tokens. start marks the beginning of the token being
// scanned and pos the next unread byte.
type lexer struct {
	input  string
	start  int
	pos    int
	tokens []token
}

func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	for {
		l.acceptFunc(isSpace)
		l.start = l.pos
		var err error
		switch r := l.peek(); {
		case r == eof:
			l.emit(typeEOF)
			return l.tokens, nil
		case r == commentChar:
			l.pos = len(l.input)
		case unicode.IsLetter(r):
			err = l.identifier()
		case l.atNumber():
			err = l.number()
		case r == '"':
			err = l.quoted()
		default:
			typ, ok := punctuation[r]
			if !ok {
				return l.tokens, l.errorf(l.pos, "unexpected character %#U", r)
			}
			l.advance()
			l.emit(typ)
		}
		if err != nil {
			return l.tokens, err
		}
	}
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.input) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *lexer) advance() rune {
	if l.pos >= len(l.input) {
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += w
	return r
}

func (l *lexer) acceptFunc(ok func(rune) bool) {
	for r := l.peek(); r != eof && ok(r); r = l.peek() {
		l.advance()
	}
}

func (l *lexer) acceptOne(set string) bool {
	if strings.ContainsRune(set, l.peek()) {
		l.advance()
		return true
	}
	return false
}

func (l *lexer) emit(t tokenType) {
	l.tokens = append(l.tokens, token{typ: t, pos: l.start, text: l.input[l.start:l.pos]})
	l.start = l.pos
}

func (l *lexer) errorf(pos int, format string, args ...interface{}) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

// isDelimiter reports whether r may directly follow a word or number.
func isDelimiter(r rune) bool {
	return isSpace(r) || r == ';' || r == eof
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_-#.:/", r)
}

// identifier scans names like kick, lame-bass, C#4, synth:pluck or drums/kick.wav.
func (l *lexer) identifier() error {
	l.acceptFunc(isWordChar)
	if r := l.peek(); !isDelimiter(r) {
		return l.errorf(l.pos, "unexpected character %#U in name", r)
	}
	l.emit(typeIdentifier)
	return nil
}

// atNumber reports whether a number starts at pos: an optional minus and
// an optional point followed by a digit.
func (l *lexer) atNumber() bool {
	rest := strings.TrimPrefix(l.input[l.pos:], "-")
	rest = strings.TrimPrefix(rest, ".")
	return rest != "" && isDigit(rune(rest[0]))
}

// number scans 12, -3, 0.5, -1. or -.25. Numbers can be followed by the
// separators of a match expression.
func (l *lexer) number() error {
	l.acceptOne("-")
	l.acceptFunc(isDigit)
	typ := typeInt
	if l.acceptOne(".") {
		typ = typeFloat
		l.acceptFunc(isDigit)
	}
	if r := l.peek(); !isDelimiter(r) && !strings.ContainsRune("/:,", r) {
		return l.errorf(l.pos, "unexpected character %#U in number", r)
	}
	l.emit(typ)
	return nil
}

// quoted scans a double quoted string. A backslash escapes the next character.
func (l *lexer) quoted() error {
	l.advance()
	for {
		switch l.advance() {
		case '\\':
			if l.advance() == eof {
				return l.errorf(l.start, "unterminated string")
			}
		case '"':
			l.emit(typeString)
			return nil
		case eof:
			return l.errorf(l.start, "unterminated string")
		}
	}
}
