package execution

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, input string) ([]core.Event, int) {
	t.Helper()
	dec := NewDecoder(strings.NewReader(input))
	var events []core.Event
	malformed := 0
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events, malformed
		}
		var fe *FrameError
		if errors.As(err, &fe) {
			malformed++
			continue
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      []core.EventType
		malformed int
	}{
		{
			name:  "sse frames",
			input: "data: {\"event\":\"run_start\"}\n\ndata: {\"event\":\"node_start\",\"node_id\":\"a\"}\n\n",
			want:  []core.EventType{core.EventRunStart, core.EventNodeStart},
		},
		{
			name:  "crlf and comments",
			input: ": keepalive\r\nevent: progress\r\ndata: {\"event\":\"run_complete\"}\r\n\r\n",
			want:  []core.EventType{core.EventRunComplete},
		},
		{
			name:  "multi-line data joins",
			input: "data: {\"event\":\ndata: \"node_chunk\",\"chunk\":\"x\"}\n\n",
			want:  []core.EventType{core.EventNodeChunk},
		},
		{
			name:  "newline delimited json",
			input: "{\"event\":\"node_start\"}\n{\"event\":\"node_complete\"}\n",
			want:  []core.EventType{core.EventNodeStart, core.EventNodeComplete},
		},
		{
			name:  "legacy aliases",
			input: "data: {\"event\":\"pipeline_start\",\"pipeline_id\":\"p\"}\n\ndata: {\"event\":\"pipeline_complete\"}\n\n",
			want:  []core.EventType{core.EventRunStart, core.EventRunComplete},
		},
		{
			name:      "malformed frame is skipped",
			input:     "data: {nope\n\ndata: {\"event\":\"run_complete\"}\n\n",
			want:      []core.EventType{core.EventRunComplete},
			malformed: 1,
		},
		{
			name:      "frame without event",
			input:     "data: {\"node_id\":\"a\"}\n\n",
			malformed: 1,
		},
		{
			name:  "partial frame at eof is discarded",
			input: "data: {\"event\":\"run_start\"}\n\ndata: {\"event\":\"node_start\"}\n",
			want:  []core.EventType{core.EventRunStart},
		},
		{
			name:  "unterminated line at eof is discarded",
			input: "data: {\"event\":\"run_start\"}\n\n{\"event\":\"node_start\"}",
			want:  []core.EventType{core.EventRunStart},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, malformed := readAll(t, tt.input)
			var got []core.EventType
			for _, ev := range events {
				got = append(got, ev.Type)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.malformed, malformed)
		})
	}
}

func TestDecoder_SplitReads(t *testing.T) {
	// Frames split across arbitrary read boundaries decode the same.
	input := "data: {\"event\":\"node_chunk\",\"node_id\":\"llm-1\",\"chunk\":\"hello \"}\n\n"
	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < len(input); i += 7 {
			end := min(i+7, len(input))
			_, _ = pw.Write([]byte(input[i:end]))
		}
		_ = pw.Close()
	}()

	ev, err := NewDecoder(pr).Next()
	require.NoError(t, err)
	assert.Equal(t, "llm-1", ev.NodeID)
	assert.Equal(t, "hello ", ev.Chunk)
}

func TestWriteFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := core.Event{
		Type:    core.EventNodeComplete,
		NodeID:  "llm-1",
		Result:  "done",
		Metrics: &core.NodeMetrics{TokensIn: 50, TokensOut: 12, Cost: 0.00043},
	}
	require.NoError(t, WriteFrame(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), "data: {"))
	assert.True(t, strings.HasSuffix(buf.String(), "}\n\n"))

	out, err := NewDecoder(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, in.NodeID, out.NodeID)
	assert.Equal(t, in.Metrics, out.Metrics)
	assert.Equal(t, "done", out.Result)
}
