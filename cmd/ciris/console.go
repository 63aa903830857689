package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// level mirrors the teacher's simple logger rank table, kept separate
// from core.Logger: this one gates a human-facing transcript printed to
// the operator's terminal in --mode cli, not the structured component
// logging every other package receives.
type level int

const (
	levelDebug level = iota
	levelInfo
)

// console is adapted from the teacher's SimpleLogger: a rank-gated,
// variadic-fields line builder, narrowed to the two levels an
// interactive session needs and always writing to stdout regardless of
// LOG_LEVEL (which governs the structured logger instead).
type console struct {
	min level
	out *log.Logger
}

func newConsole(debug bool) *console {
	min := levelInfo
	if debug {
		min = levelDebug
	}
	return &console{min: min, out: log.New(os.Stdout, "", 0)}
}

func (c *console) Debugf(format string, fields ...interface{}) { c.line(levelDebug, format, fields...) }
func (c *console) Infof(format string, fields ...interface{})  { c.line(levelInfo, format, fields...) }

func (c *console) line(l level, format string, fields ...interface{}) {
	if l < c.min {
		return
	}
	msg := fmt.Sprintf(format, fields...)
	c.out.Println(msg)
}

// summarize renders a small key/value tail the way the teacher's
// SimpleLogger.log appends fields, sorted so round-summary output is
// deterministic across runs.
func summarize(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
