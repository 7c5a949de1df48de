package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/liliang-cn/askdesk/internal/domain"
	"go.uber.org/zap"
)

// Assembler decodes a server-sent-event response body into text fragments
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates a new assembler
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// AssembleResult summarizes a decoded stream
type AssembleResult struct {
	Fragments int
	Skipped   int
	Done      bool // the [DONE] sentinel was observed
}

// Assemble reads body line by line and calls emit for every fragment, in
// arrival order. It returns when the sentinel is seen or the body ends.
// Lines are reassembled from raw bytes, so multi-byte characters split across
// reads are decoded intact. Malformed payloads are skipped.
func (a *Assembler) Assemble(ctx context.Context, body io.Reader, emit func(fragment string)) (AssembleResult, error) {
	var res AssembleResult
	r := bufio.NewReader(body)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line, readErr := r.ReadString('\n')
		if line != "" {
			data, ok := eventData(line)
			if ok {
				if data == domain.SSEDone {
					res.Done = true
					return res, nil
				}

				var chunk domain.CompletionChunk
				if err := json.Unmarshal([]byte(data), &chunk); err != nil {
					res.Skipped++
					a.logger.Debug("Skipping malformed stream payload", zap.String("data", data), zap.Error(err))
				} else if fragment := chunk.Fragment(); fragment != "" {
					res.Fragments++
					emit(fragment)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return res, nil
			}
			return res, readErr
		}
	}
}

// eventData extracts the payload of a `data:` line
func eventData(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	data := strings.TrimPrefix(line, "data:")
	return strings.TrimPrefix(data, " "), true
}
