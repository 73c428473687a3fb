package dub

import (
	"errors"
	"reflect"
	"testing"
)

func TestLexer(t *testing.T) {
	type test struct {
		input  string
		expect []token
	}
	tests := []test{
		{
			input: "A '* 2",
			expect: []token{
				token{typ: typeIdentifier, text: "A"},
				token{typ: typeQuote, text: "'"},
				token{typ: typeAsterisk, text: "*"},
				token{typ: typeInt, text: "2"},
				token{typ: typeEOF},
			},
		},
		{
			input: "A 1 2",
			expect: []token{
				token{typ: typeIdentifier, text: "A"},
				token{typ: typeInt, text: "1"},
				token{typ: typeInt, text: "2"},
				token{typ: typeEOF},
			},
		},
		{
			input: "'1:2 /    / 3,4",
			expect: []token{
				token{typ: typeQuote, text: "'"},
				token{typ: typeInt, text: "1"},
				token{typ: typeColon, text: ":"},
				token{typ: typeInt, text: "2"},
				token{typ: typeSlash, text: "/"},
				token{typ: typeSlash, text: "/"},
				token{typ: typeInt, text: "3"},
				token{typ: typeComma, text: ","},
				token{typ: typeInt, text: "4"},
				token{typ: typeEOF},
			},
		},
		{
			input: "1.0",
			expect: []token{
				token{typ: typeFloat, text: "1.0"},
				token{typ: typeEOF},
			},
		},
		{
			input: "-1.",
			expect: []token{
				token{typ: typeFloat, text: "-1."},
				token{typ: typeEOF},
			},
		},
		{
			input: "-.1",
			expect: []token{
				token{typ: typeFloat, text: "-.1"},
				token{typ: typeEOF},
			},
		},
		{
			input: `command "this is a string" 1`,
			expect: []token{
				token{typ: typeIdentifier, text: "command"},
				token{typ: typeString, text: `"this is a string"`},
				token{typ: typeInt, text: "1"},
				token{typ: typeEOF},
			},
		},
		{
			input: "chan add lame-bass;play",
			expect: []token{
				token{typ: typeIdentifier, text: "chan"},
				token{typ: typeIdentifier, text: "add"},
				token{typ: typeIdentifier, text: "lame-bass"},
				token{typ: typeSemicolon, text: ";"},
				token{typ: typeIdentifier, text: "play"},
				token{typ: typeEOF},
			},
		},
		{
			input: "chan synth:pluck drums/hat.wav",
			expect: []token{
				token{typ: typeIdentifier, text: "chan"},
				token{typ: typeIdentifier, text: "synth:pluck"},
				token{typ: typeIdentifier, text: "drums/hat.wav"},
				token{typ: typeEOF},
			},
		},
		{
			input: "bpm 120; note C#4\t0.5",
			expect: []token{
				token{typ: typeIdentifier, text: "bpm"},
				token{typ: typeInt, text: "120"},
				token{typ: typeSemicolon, text: ";"},
				token{typ: typeIdentifier, text: "note"},
				token{typ: typeIdentifier, text: "C#4"},
				token{typ: typeFloat, text: "0.5"},
				token{typ: typeEOF},
			},
		},
		{
			input: "bpm 120 # faster; still a comment",
			expect: []token{
				token{typ: typeIdentifier, text: "bpm"},
				token{typ: typeInt, text: "120"},
				token{typ: typeEOF},
			},
		},
		{
			input: "# only a comment",
			expect: []token{
				token{typ: typeEOF},
			},
		},
		{
			input: `name "say \"hi\""`,
			expect: []token{
				token{typ: typeIdentifier, text: "name"},
				token{typ: typeString, text: `"say \"hi\""`},
				token{typ: typeEOF},
			},
		},
	}
	for _, test := range tests {
		t.Log(test.input)
		tokens, err := lex(test.input)
		if err != nil {
			t.Errorf("unexpected lex error: %v", err)
			continue
		}
		if len(tokens) != len(test.expect) {
			t.Fatalf("token mismatch: \nwant: %+v, \ngot:  %+v", test.expect, tokens)
		}
		for i, got := range tokens {
			want := test.expect[i]
			if want.typ != got.typ {
				t.Errorf("wrong type: want %v, got %v", want, got)
			}
			if want.text != got.text {
				t.Errorf("wrong text: want %v, got %v", want, got)
			}
		}
	}
}

func TestLexerErrors(t *testing.T) {
	for _, input := range []string{
		"a -",
		"a .-",
		`load "unterminated`,
		"a 12x",
		"a%",
	} {
		_, err := lex(input)
		if err == nil {
			t.Errorf("expected error for input: %q", input)
		}
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	tests := []struct {
		input string
		pos   int
	}{
		{"bpm 12x", 6},
		{`load "open`, 5},
		{"play %", 5},
	}
	for _, test := range tests {
		_, err := lex(test.input)
		var serr *SyntaxError
		if !errors.As(err, &serr) {
			t.Errorf("%q: want SyntaxError, got %v", test.input, err)
			continue
		}
		if serr.Pos != test.pos {
			t.Errorf("%q: want error at %d, got %d", test.input, test.pos, serr.Pos)
		}
	}

	tokens, err := lex("step kick '1:4")
	if err != nil {
		t.Fatal(err)
	}
	var pos []int
	for _, tok := range tokens {
		pos = append(pos, tok.pos)
	}
	if want := []int{0, 5, 10, 11, 12, 13, 14}; !reflect.DeepEqual(want, pos) {
		t.Errorf("want token positions %v, got %v", want, pos)
	}
}

