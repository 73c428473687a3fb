package dub

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	type test struct {
		input string
		want  Command
	}
	tests := []test{
		{
			input: "A '1",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: listMatch{1}},
						},
					},
				},
			},
		},
		{
			input: "A '*/*",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: matchAll},
							{level: 1, matcher: matchAll},
						},
					},
				},
			},
		},
		{
			input: "A '*//3,4",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: matchAll},
							{level: 2, matcher: listMatch{3, 4}},
						},
					},
				},
			},
		},
		{
			input: "A '1,2//3:4",
			want: Command{
				Name: Identifier("A"),
				Args: []Node{
					MatchExpr{
						matchers: []matchItem{
							{level: 0, matcher: listMatch{1, 2}},
							{level: 2, matcher: rangeMatch{start: 3, end: 4}},
						},
					},
				},
			},
		},
		{
			input: `load "a/file.wav"`,
			want: Command{
				Name: Identifier("load"),
				Args: []Node{String("a/file.wav")},
			},
		},
		{
			input: `load ""`,
			want: Command{
				Name: Identifier("load"),
				Args: []Node{String("")},
			},
		},
	}
	for _, test := range tests {
		t.Log(test.input)
		got, err := Parse(test.input)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(test.want, got) {
			t.Errorf("\nwant: %+v\ngot:  %+v", test.want, got)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		input string
		want  []Command
	}{
		{input: "", want: nil},
		{input: " ; ;", want: nil},
		{
			input: "play",
			want:  []Command{{Name: "play"}},
		},
		{
			input: "bpm 120; step 1 '1:4;play",
			want: []Command{
				{Name: "bpm", Args: []Node{Int(120)}},
				{Name: "step", Args: []Node{
					Int(1),
					MatchExpr{matchers: []matchItem{{level: 0, matcher: rangeMatch{start: 1, end: 4}}}},
				}},
				{Name: "play"},
			},
		},
		{
			input: `save "my song" ; gain 0 -3.5`,
			want: []Command{
				{Name: "save", Args: []Node{String("my song")}},
				{Name: "gain", Args: []Node{Int(0), Float(-3.5)}},
			},
		},
		{
			input: `name "a \"b\""`,
			want: []Command{
				{Name: "name", Args: []Node{String(`a "b"`)}},
			},
		},
	}
	for _, test := range tests {
		got, err := ParseLine(test.input)
		if err != nil {
			t.Fatalf("%q: %v", test.input, err)
		}
		if !reflect.DeepEqual(test.want, got) {
			t.Errorf("%q:\nwant: %+v\ngot:  %+v", test.input, test.want, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"1 2",
		"a; b",
		"a '1:x",
		"a ,",
	} {
		if _, err := Parse(input); err == nil {
			t.Errorf("expected error for input: %q", input)
		}
	}
	if _, err := Parse("a ,"); err == nil || err.Error() != `syntax error at 2: unexpected ","` {
		t.Errorf("unexpected error message: %v", err)
	}
	if _, err := Parse("  # nothing here"); err != ErrEmpty {
		t.Errorf("want ErrEmpty for a comment, got %v", err)
	}
	if _, err := Parse("  "); err != ErrEmpty {
		t.Errorf("want ErrEmpty, got %v", err)
	}
}
