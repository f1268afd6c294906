package sse

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AddEvent writes one event to w without flushing it.
// Every line of data becomes its own data: field.
func AddEvent(w io.Writer, event string, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		_, err := io.WriteString(w, "data: \n\n")
		return err
	}

	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		if _, err := fmt.Fprintf(w, "data: %s\n", scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sse: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// maxLine bounds a single data line; dashboard payloads carry base64 images.
const maxLine = 16 << 20

// AddComment writes a comment line, used as a keep-alive.
func AddComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

// Send flushes the events queued by AddEvent. Writers that cannot flush are
// left alone.
func Send(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// SendEvent adds an event and flushes it along with anything pending.
func SendEvent(w http.ResponseWriter, event string, data string) error {
	if err := AddEvent(w, event, data); err != nil {
		return err
	}
	Send(w)
	return nil
}

// Prepare sets the stream headers. It must run before the first write.
func Prepare(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}
