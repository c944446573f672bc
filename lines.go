package o3chat

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// splitLines splits a plain-text body into display lines. A trailing
// newline does not produce an empty final line.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines
}

// readNotification reads a server diagnostic body. Lines are joined with
// a single space. A read error is returned alongside whatever was read.
func readNotification(body io.Reader) (string, error) {
	r := bufio.NewReader(io.LimitReader(body, maxResponseSize))
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(line)
		}
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
	}
}
