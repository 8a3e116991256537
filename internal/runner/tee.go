package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

const teeBufferSize = 64 * 1024

// Tee drains r until end-of-stream. Each line is cleaned of progress
// redraws, logged at level, and, when keep is set, collected in the
// returned slice. Lines are delivered to the logger as they arrive.
func Tee(ctx context.Context, r io.Reader, log *slog.Logger, level slog.Level, keep bool) ([]string, error) {
	var lines []string
	err := readLines(r, func(line string) {
		log.Log(ctx, level, line)
		if keep {
			lines = append(lines, line)
		}
	})
	return lines, err
}

// CleanLine trims surrounding whitespace and keeps only the text after the
// last carriage return, so that progress redraws are not logged.
func CleanLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\r'); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	return strings.ToValidUTF8(s, "�")
}

// readLines calls fn for every line of r. Lines longer than the read buffer
// are compacted to their last carriage-return segment while reading, so a
// phase that redraws a progress bar for hours does not grow without bound.
func readLines(r io.Reader, fn func(string)) error {
	br := bufio.NewReaderSize(r, teeBufferSize)
	var pending []byte
	for {
		chunk, err := br.ReadSlice('\n')
		pending = append(pending, chunk...)

		switch {
		case err == nil:
			fn(CleanLine(string(pending)))
			pending = pending[:0]
		case errors.Is(err, bufio.ErrBufferFull):
			pending = compact(pending)
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
			if len(pending) > 0 {
				fn(CleanLine(string(pending)))
			}
			return nil
		default:
			return err
		}
	}
}

// compact drops everything before the last carriage return that is not the
// final byte. The carriage return itself is kept so CleanLine still splits.
func compact(b []byte) []byte {
	if len(b) < 2 {
		return b
	}
	i := bytes.LastIndexByte(b[:len(b)-1], '\r')
	if i <= 0 {
		return b
	}
	return append(b[:0], b[i:]...)
}
