package execution

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Decoder reads execution frames from a stream. It accepts server-sent
// event framing (one or more "data:" lines terminated by a blank line) and
// bare newline-delimited JSON objects. Comment, event, id and retry lines
// are ignored. A frame cut off by the end of the stream is discarded.
type Decoder struct {
	r    *bufio.Reader
	data []string
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete frame. It returns a *FrameError for an
// undecodable payload, after which reading may continue, and the reader's
// error (io.EOF at a clean end) once the stream is exhausted.
func (d *Decoder) Next() (core.Event, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			d.data = d.data[:0]
			return core.Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if len(d.data) == 0 {
				continue
			}
			payload := strings.Join(d.data, "\n")
			d.data = d.data[:0]
			return decodeFrame(payload)

		case strings.HasPrefix(line, "data:"):
			d.data = append(d.data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))

		case strings.HasPrefix(line, "{") && len(d.data) == 0:
			return decodeFrame(line)
		}
	}
}

func decodeFrame(payload string) (core.Event, error) {
	var ev core.Event
	if err := sonic.UnmarshalString(payload, &ev); err != nil {
		return core.Event{}, &FrameError{Payload: payload, Err: err}
	}
	if ev.Type == "" {
		return core.Event{}, &FrameError{Payload: payload, Err: fmt.Errorf("missing event field")}
	}
	ev.Type = ev.Type.Canonical()
	return ev, nil
}

// WriteFrame writes ev as one server-sent event frame.
func WriteFrame(w io.Writer, ev core.Event) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
