package dub

import "testing"

func TestPitch(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"C4", 60, true},
		{"c4", 60, true},
		{"C#4", 61, true},
		{"Db4", 61, true},
		{"A4", 69, true},
		{"B3", 59, true},
		{"Bb3", 58, true},
		{"C-1", 0, true},
		{"G9", 127, true},
		{"G#9", 0, false},
		{"Cb-1", 0, false},
		{"H4", 0, false},
		{"C", 0, false},
		{"kick", 0, false},
	}
	for _, test := range tests {
		got, ok := Pitch(Identifier(test.name))
		if ok != test.ok || got != test.want {
			t.Errorf("%s: want (%d, %v), got (%d, %v)", test.name, test.want, test.ok, got, ok)
		}
	}
}
