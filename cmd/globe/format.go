package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/c3i/globe/internal/scene"
	"github.com/c3i/globe/pkg/core"
	"github.com/fatih/color"
)

var faint = color.New(color.Faint)

func printError(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("✗ %v", err))
}

// swatch renders a dot in the waypoint's own color.
func swatch(hex string) string {
	r, g, b := scene.ParseColor(hex).RGB255()
	return color.RGB(int(r), int(g), int(b)).Sprint("●")
}

func formatWaypoint(wp core.Waypoint, now time.Time) string {
	line := fmt.Sprintf("%s %s %s %s",
		swatch(wp.Color),
		color.CyanString(wp.DisplayLabel()),
		faint.Sprint(wp.Coords.String()),
		faint.Sprint(shortID(wp.ID)),
	)
	if wp.CreatedBy != "" {
		line += faint.Sprintf(" by %s", wp.CreatedBy)
	}
	if !wp.CreatedAt.IsZero() {
		line += faint.Sprintf(" - %s", relativeTime(wp.CreatedAt, now))
	}
	return line
}

func printWaypoints(w io.Writer, wps []core.Waypoint, now time.Time) {
	if len(wps) == 0 {
		fmt.Fprintln(w, faint.Sprint("(no waypoints)"))
		return
	}
	for _, wp := range wps {
		fmt.Fprintln(w, formatWaypoint(wp, now))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2, 2006")
	}
}
