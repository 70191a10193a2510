package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"blockflow/internal/poslog"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(status poslog.Status) *color.Color {
	switch status {
	case poslog.StatusCompleted:
		return color.New(color.FgGreen)
	case poslog.StatusRunning:
		return color.New(color.FgBlue)
	case poslog.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

// renderStatus colours a status label when colorize is set.
func renderStatus(status poslog.Status, colorize bool) string {
	label := string(status)
	if !colorize {
		return label
	}
	c := statusColor(status)
	c.EnableColor()
	return c.Sprint(label)
}
