package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"tidgi-agent/internal/domain"
)

// maxSSELine bounds a single SSE line.
const maxSSELine = 1 << 20

// parseSSEStream reads SSE-formatted lines from body and converts each data
// payload into a Delta using the provider-specific parseLine function.
// The returned channel is closed when the stream ends, the body is closed, or
// ctx is cancelled.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*Delta, error)) <-chan Delta {
	ch := make(chan Delta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(d Delta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Bytes()
			if len(line) == 0 || line[0] == ':' {
				continue
			}
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))

			if bytes.Equal(data, []byte("[DONE]")) {
				send(Delta{Done: true})
				return
			}

			delta, err := parseLine(data)
			if err != nil {
				// Unparseable lines are skipped.
				continue
			}
			if delta == nil {
				continue
			}
			if !send(*delta) || delta.Done || delta.Err != nil {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		err := scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		send(Delta{Err: fmt.Errorf("%w: stream interrupted: %v", domain.ErrProviderError, err)})
	}()
	return ch
}
