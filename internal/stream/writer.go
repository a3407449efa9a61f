// Package stream renders a fetch as a line oriented text stream: a start
// marker, one JSON document per transaction, then either a completion marker
// or an error marker carrying the JSON encoded failure message.
package stream

import (
	"encoding/json"
	"io"
)

const (
	StartMarker = "Starting to fetch transactions...\n"
	DoneMarker  = "All transactions fetched.\n"
	ErrorPrefix = "An error occurred: "
)

type flusher interface {
	Flush()
}

type errFlusher interface {
	Flush() error
}

// Writer writes stream lines to an underlying io.Writer, flushing after each
// line when the writer supports it (http.ResponseWriter, bufio.Writer).
type Writer struct {
	w io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) line(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return err
	}

	switch f := w.w.(type) {
	case errFlusher:
		return f.Flush()
	case flusher:
		f.Flush()
	}

	return nil
}

// Start writes the start marker.
func (w *Writer) Start() error {
	return w.line([]byte(StartMarker))
}

// Record writes v as a single JSON line.
func (w *Writer) Record(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return w.line(append(data, '\n'))
}

// Done writes the completion marker.
func (w *Writer) Done() error {
	return w.line([]byte(DoneMarker))
}

// Fail writes the error marker followed by the JSON encoded error message.
func (w *Writer) Fail(cause error) error {
	data, err := json.Marshal(cause.Error())
	if err != nil {
		return err
	}

	return w.line(append(append([]byte(ErrorPrefix), data...), '\n'))
}

// Run writes the start marker, runs fetch and streams its result. A fetch
// error is written as an error marker and returned; the records gathered
// before a failure are not written. The returned error is the fetch error,
// or the first write error.
func Run[T any](w io.Writer, fetch func() ([]T, error)) error {
	sw := NewWriter(w)
	if err := sw.Start(); err != nil {
		return err
	}

	records, fetchErr := fetch()
	if fetchErr != nil {
		if err := sw.Fail(fetchErr); err != nil {
			return err
		}
		return fetchErr
	}

	for _, r := range records {
		if err := sw.Record(r); err != nil {
			return err
		}
	}

	return sw.Done()
}
