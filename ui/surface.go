// Package ui holds the viewer surfaces: a full-screen tview dashboard, a
// plain line-oriented console and a headless logger.
package ui

import (
	"io"

	"enginewatch/viewer"
)

// Surface draws frames produced by a viewer.Renderer.
// Implementations must be safe for concurrent calls from the client and
// logging goroutines.
type Surface interface {
	WaitReady()
	Stop()
	// Done is closed when the user quits the surface; nil if it never quits.
	Done() <-chan struct{}
	SetConnection(connected bool)
	Render(frame viewer.Frame)
	AppendSystem(line string)
	SystemWriter() io.Writer
}
