package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chzyer/readline"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/dub"
	"github.com/mrdg/rack/engine"
	"github.com/mrdg/rack/project"
)

type env struct {
	engine   *engine.Engine
	store    project.Store
	user     string
	resolver engine.Resolver
	log      *log.Logger
}

// eval runs every command on the line and returns their results. It stops at
// the first failing command.
func (e *env) eval(input string) ([]dub.Node, error) {
	cmds, err := dub.ParseLine(input)
	if err != nil {
		return nil, err
	}
	var results []dub.Node
	for _, cmd := range cmds {
		result, err := e.exec(cmd)
		if err != nil {
			return results, err
		}
		if result != nil {
			results = append(results, result)
		}
	}
	return results, nil
}

func (e *env) exec(command dub.Command) (dub.Node, error) {
	name := string(command.Name)
	for _, cmd := range commands {
		if name != cmd.name {
			continue
		}
		if cmd.arity < 0 {
			arity := -cmd.arity
			if len(command.Args) < arity {
				return nil, fmt.Errorf("%s: wrong number of arguments: need at least %v, got %v",
					cmd.name, arity, len(command.Args))
			}
		} else if len(command.Args) != cmd.arity {
			return nil, fmt.Errorf("%s: wrong number of arguments: want %v, got %v",
				cmd.name, cmd.arity, len(command.Args))
		}
		e.log.Debug("command", "name", name, "args", len(command.Args))
		result, err := cmd.run(e, command.Args)
		if err != nil {
			return result, fmt.Errorf("%s error: %w", cmd.name, err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("unknown command: %s", name)
}

func repl(env *env) error {
	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			fmt.Println(err)
			continue
		}
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		results, err := env.eval(line)
		for _, result := range results {
			fmt.Println(result)
		}
		if err != nil {
			fmt.Println(err)
		}
	}
}

// channel finds a channel by id or name.
func (e *env) channel(arg dub.Node) (audio.ID, error) {
	chans := e.engine.Channels()
	switch v := arg.(type) {
	case dub.Int:
		for _, ch := range chans {
			if ch.ID == audio.ID(v) {
				return ch.ID, nil
			}
		}
	case dub.Identifier, dub.String:
		name := nodeString(v)
		for _, ch := range chans {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
	default:
		return 0, fmt.Errorf("argument error: expected a channel id or name")
	}
	return 0, fmt.Errorf("%w: %v", engine.ErrUnknownChannel, arg)
}

// track finds a mixer track by id or name.
func (e *env) track(arg dub.Node) (audio.ID, error) {
	tracks := e.engine.Tracks()
	switch v := arg.(type) {
	case dub.Int:
		for _, t := range tracks {
			if t.ID == audio.ID(v) {
				return t.ID, nil
			}
		}
	case dub.Identifier, dub.String:
		name := nodeString(v)
		for _, t := range tracks {
			if t.Name == name {
				return t.ID, nil
			}
		}
	default:
		return 0, fmt.Errorf("argument error: expected a track id or name")
	}
	return 0, fmt.Errorf("%w: %v", engine.ErrUnknownTrack, arg)
}

func nodeString(n dub.Node) string {
	switch v := n.(type) {
	case dub.Identifier:
		return string(v)
	case dub.String:
		return string(v)
	}
	return fmt.Sprint(n)
}

// pitchArg accepts a MIDI note number or a note name like C#4.
func pitchArg(n dub.Node) (int, error) {
	switch v := n.(type) {
	case dub.Int:
		if v < 0 || v > 127 {
			return 0, fmt.Errorf("pitch out of range: %d", v)
		}
		return int(v), nil
	case dub.Identifier:
		if p, ok := dub.Pitch(v); ok {
			return p, nil
		}
		return 0, fmt.Errorf("not a note name: %s", v)
	}
	return 0, errors.New("argument error: expected a pitch")
}

func readArgs(args []dub.Node, slots ...interface{}) error {
	if len(args) != len(slots) {
		return errors.New("not enough arguments")
	}
	for n, arg := range args {
		dest := slots[n]
		switch p := dest.(type) {
		case *string:
			switch s := arg.(type) {
			case dub.String, dub.Identifier:
				*p = nodeString(s)
			default:
				return fmt.Errorf("argument error: expected a string or identifier")
			}
		case *float64:
			switch v := arg.(type) {
			case dub.Float:
				*p = float64(v)
			case dub.Int:
				*p = float64(v)
			default:
				return fmt.Errorf("argument error: expected a number")
			}
		case *int:
			v, ok := arg.(dub.Int)
			if !ok {
				return fmt.Errorf("argument error: expected an integer")
			}
			*p = int(v)
		case *int64:
			v, ok := arg.(dub.Int)
			if !ok {
				return fmt.Errorf("argument error: expected an integer")
			}
			*p = int64(v)
		case *dub.MatchExpr:
			expr, ok := arg.(dub.MatchExpr)
			if !ok {
				return fmt.Errorf("argument error: expected a match expression")
			}
			*p = expr
		case *dub.Node:
			*p = arg
		default:
			panic("readArgs: unhandled destination type: " + fmt.Sprint(p))
		}
	}
	return nil
}
