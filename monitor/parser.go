/*
rvsim - Monitor command parser

	Copyright 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a copy
	of this software and associated documentation files (the "Software"), to deal
	in the Software without restriction, including without limitation the rights
	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
	copies of the Software, and to permit persons to whom the Software is
	furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
	SOFTWARE.

	A prefix-matched command table over a hart/bus debug surface, in the
	shape of command/parser's device-attach dispatcher: a cmdLine tokenizer,
	a cmd table with a minimum unambiguous-prefix length, and a
	ProcessCommand entry point returning (quit, error).
*/
package monitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type cmd struct {
	name    string
	min     int
	process func(*cmdLine, *Monitor) (bool, error)
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "step", min: 1, process: cmdStep},
	{name: "continue", min: 1, process: cmdContinue},
	{name: "stop", min: 2, process: cmdStop},
	{name: "registers", min: 3, process: cmdRegisters},
	{name: "csr", min: 3, process: cmdCSR},
	{name: "examine", min: 1, process: cmdExamine},
	{name: "deposit", min: 1, process: cmdDeposit},
	{name: "break", min: 2, process: cmdBreak},
	{name: "unbreak", min: 3, process: cmdUnbreak},
	{name: "quit", min: 1, process: cmdQuit},
	{name: "help", min: 1, process: cmdHelp},
}

// ProcessCommand runs one command line against m and reports whether the
// monitor should exit.
func ProcessCommand(line string, m *Monitor) (bool, error) {
	cl := cmdLine{line: line}
	name := cl.getWord()

	matches := matchList(name)
	switch len(matches) {
	case 0:
		return false, errors.New("command not found: " + name)
	case 1:
		return matches[0].process(&cl, m)
	default:
		return false, fmt.Errorf("ambiguous command: %q", name)
	}
}

// CompleteCmd returns command-name completions for line, for liner's
// tab-completion hook.
func CompleteCmd(line string) []string {
	cl := cmdLine{line: line}
	name := cl.getWord()
	matches := matchList(name)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

func matchCommand(c cmd, name string) bool {
	if len(name) > len(c.name) || len(name) < c.min {
		return false
	}
	return c.name[:len(name)] == name
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var out []cmd
	for _, c := range cmdList {
		if matchCommand(c, name) {
			out = append(out, c)
		}
	}
	return out
}

func (l *cmdLine) skipSpace() {
	for l.pos < len(l.line) && unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
}

func (l *cmdLine) isEOL() bool { return l.pos >= len(l.line) }

func (l *cmdLine) getWord() string {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.line) && !unicode.IsSpace(rune(l.line[l.pos])) {
		l.pos++
	}
	return strings.ToLower(l.line[start:l.pos])
}

// getUint parses the next word as an unsigned integer: hex with a 0x
// prefix, decimal without one. The monitor shows addresses and register
// values in hex.
func (l *cmdLine) getUint() (uint64, error) {
	w := l.getWord()
	if w == "" {
		return 0, errors.New("expected a number")
	}
	base := 10
	if strings.HasPrefix(w, "0x") {
		w = w[2:]
		base = 16
	}
	return strconv.ParseUint(w, base, 64)
}
