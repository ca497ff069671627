package chunker

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

const binarySniffBytes = 1024

// IsBinary reports whether raw looks like binary content (a NUL byte near the start).
func IsBinary(raw []byte) bool {
	head := raw
	if len(head) > binarySniffBytes {
		head = head[:binarySniffBytes]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// DecodeContent converts raw bytes to text, dropping invalid UTF-8 sequences.
// lossy is true when bytes had to be dropped.
func DecodeContent(raw []byte) (text string, lossy bool) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), false
	}
	return strings.ToValidUTF8(string(raw), ""), true
}

// CleanCode strips trailing whitespace from every line, normalizes line endings
// and collapses runs of blank lines to at most two.
func CleanCode(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	result := make([]string, 0, len(lines))
	emptyCount := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r\v\f")
		if line == "" {
			emptyCount++
			if emptyCount > 2 {
				continue
			}
		} else {
			emptyCount = 0
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}
