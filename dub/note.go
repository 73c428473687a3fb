package dub

import (
	"strconv"
	"strings"
)

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// Pitch converts a note name such as C4, f#2 or Db-1 to a MIDI note number,
// with C4 being 60.
func Pitch(name Identifier) (int, bool) {
	s := strings.ToLower(string(name))
	if len(s) < 2 {
		return 0, false
	}
	n, ok := noteOffsets[s[0]]
	if !ok {
		return 0, false
	}
	s = s[1:]
	switch s[0] {
	case '#':
		n++
		s = s[1:]
	case 'b':
		n--
		s = s[1:]
	}
	octave, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	p := (octave+1)*12 + n
	if p < 0 || p > 127 {
		return 0, false
	}
	return p, true
}
