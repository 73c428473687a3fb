package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mrdg/rack/engine"
	"github.com/mrdg/rack/seq"
)

var (
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	numberStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	stepOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	stepOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	meterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

const spacePerStep = 3

func renderState(e *engine.Engine, w io.Writer) {
	tr := e.Transport()
	chans := e.Channels()

	fmt.Fprintf(w, "%s %s ♩ = %.0f  tick %d", transportIcon(tr.State), tr.State, tr.Tempo, tr.Index)
	if tr.Looping {
		fmt.Fprintf(w, "  loop %d-%d", tr.Loop.Start, tr.Loop.End)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	var maxNameLen, maxSteps int
	for _, ch := range chans {
		maxNameLen = max(maxNameLen, len(displayName(ch.Name)))
		maxSteps = max(maxSteps, len(ch.Steps))
	}
	maxNameLen++

	if len(chans) > 0 {
		var icons []string
		for i := 1; i <= maxSteps/seq.StepsPerBeat; i++ {
			icons = append(icons, numIcon(i))
		}
		spacing := seq.StepsPerBeat*spacePerStep - 2
		fmt.Fprintf(w, "%s       %s\n", strings.Repeat(" ", maxNameLen), strings.Join(icons, strings.Repeat(" ", spacing)))
	}

	for _, ch := range chans {
		speaker := "🔈"
		if ch.Muted {
			speaker = "🔇"
		}
		var steps strings.Builder
		cursor := -1
		if tr.State == seq.Playing && len(ch.Steps) > 0 {
			cursor = int(tr.Pos % int64(len(ch.Steps)))
		}
		for i, v := range ch.Steps {
			steps.WriteString(renderStep(v, i == cursor))
			steps.WriteString(strings.Repeat(" ", spacePerStep-1))
		}
		id := idStyle.Render(fmt.Sprintf("%2d", ch.ID))
		fmt.Fprintf(w, "%s %s %s %s  %s\n", id, formatSampleName(ch.Name, maxNameLen), speaker, pitchName(ch.Pitch), steps.String())
	}

	if maxSteps > 0 {
		var numbers strings.Builder
		for step := 1; step <= maxSteps; step++ {
			s := strconv.Itoa(step)
			numbers.WriteString(s + strings.Repeat(" ", max(spacePerStep-len(s), 1)))
		}
		fmt.Fprintf(w, "%s         %s\n", strings.Repeat(" ", maxNameLen), numberStyle.Render(numbers.String()))
	}

	fmt.Fprintln(w)
	for _, t := range e.Tracks() {
		flags := ""
		if t.Muted {
			flags += "M"
		}
		if t.Solo {
			flags += "S"
		}
		var fx []string
		for _, eff := range t.Effects {
			fx = append(fx, fmt.Sprintf("%s(%.2f)", eff.Type, eff.Wet))
		}
		fmt.Fprintf(w, "%s %-8s gain %.2f pan %+.2f %-2s %s %s\n",
			idStyle.Render(fmt.Sprintf("%2d", t.ID)), t.Name, t.Gain, t.Pan, flags,
			meterBar(t.Level, 10), strings.Join(fx, " "))
	}
	fmt.Fprintf(w, "   %-8s gain %.2f            %s\n", "master", e.MasterGain(), meterBar(e.MasterLevel(), 10))
}

func renderStep(velocity float64, cursor bool) string {
	switch {
	case cursor:
		return cursorStyle.Render("▶")
	case velocity > 0:
		return stepOnStyle.Render("●")
	default:
		return stepOffStyle.Render("·")
	}
}

func meterBar(level float32, width int) string {
	n := int(min(max(level, 0), 1) * float32(width))
	return meterStyle.Render(strings.Repeat("█", n)) + strings.Repeat(" ", width-n)
}

func transportIcon(s seq.State) string {
	switch s {
	case seq.Playing:
		return "▶"
	case seq.Paused:
		return "⏸"
	default:
		return "⏹"
	}
}

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// pitchName formats a MIDI note number, 60 being C4.
func pitchName(p int) string {
	return fmt.Sprintf("%-3s", pitchClasses[p%12]+strconv.Itoa(p/12-1))
}

func formatSampleName(sample string, max int) string {
	sample = displayName(sample)

	if len(sample) > max {
		sample = sample[:max-1]
		sample += "…"
	}
	if len(sample) < max {
		sample += strings.Repeat(" ", max-len(sample))
	}
	return nameStyle.Render(sample)
}

func displayName(filename string) string {
	filename = filepath.Base(filename)
	return filename[:len(filename)-len(filepath.Ext(filename))]
}

func numIcon(n int) string {
	// https://www.unicode.org/emoji/charts/full-emoji-list.html#0030_fe0f_20e3
	return string([]byte{48 + byte(n%10), 239, 184, 143, 226, 131, 163})
}
