package utils

import (
	"io"
	"sync"
)

type flusher interface {
	Flush() error
}

// FlushingWriter flushes buffered destinations after every write so summaries appear before the
// process exits.
type FlushingWriter struct {
	destination io.Writer
	mutex       sync.Mutex
}

// NewFlushingWriter wraps destination. A nil destination yields nil and an existing FlushingWriter
// is returned unchanged.
func NewFlushingWriter(destination io.Writer) io.Writer {
	if destination == nil {
		return nil
	}
	if _, wrapped := destination.(*FlushingWriter); wrapped {
		return destination
	}
	return &FlushingWriter{destination: destination}
}

// Write forwards data and flushes when the destination supports it.
func (writer *FlushingWriter) Write(data []byte) (int, error) {
	if writer == nil || writer.destination == nil {
		return 0, nil
	}
	writer.mutex.Lock()
	defer writer.mutex.Unlock()

	written, writeError := writer.destination.Write(data)
	if writeError != nil {
		return written, writeError
	}
	if buffered, canFlush := writer.destination.(flusher); canFlush {
		if flushError := buffered.Flush(); flushError != nil {
			return written, flushError
		}
	}
	return written, nil
}
