// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles command-line output. Styling applies only when the
// destination is a terminal; redirected output stays plain text so it can
// be parsed by scripts.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorTeal    = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Highlight lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
}{
	Highlight: lipgloss.NewStyle().Foreground(ColorTeal).Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorTeal),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
}

// Icon is a status marker shown before styled lines.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Printer writes lines to one destination, styled or plain.
type Printer struct {
	out    io.Writer
	styled bool
}

// NewPrinter styles output when out is a terminal.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, styled: IsTerminal(out)}
}

// NewPlainPrinter never styles.
func NewPlainPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Styled reports whether the printer emits styling.
func (p *Printer) Styled() bool {
	return p.styled
}

// Result prints a primary result line.
func (p *Printer) Result(text string) {
	if !p.styled {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintln(p.out, Styles.Highlight.Render(text))
}

// Progress prints an intermediate status line.
func (p *Printer) Progress(text string) {
	p.line(IconPending, Styles.Muted, text)
}

// Success prints a completion line.
func (p *Printer) Success(text string) {
	p.line(IconSuccess, Styles.Success, text)
}

// Warning prints a line for an incomplete but non-fatal outcome.
func (p *Printer) Warning(text string) {
	p.line(IconWarning, Styles.Warning, text)
}

// Error prints a failure line.
func (p *Printer) Error(text string) {
	p.line(IconError, Styles.Error, text)
}

func (p *Printer) line(icon Icon, style lipgloss.Style, text string) {
	if !p.styled {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", style.Render(string(icon)), style.Render(text))
}
