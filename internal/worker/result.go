package worker

import (
	"strings"
)

// resultSentinel is the stdout prefix handlers use to report their
// one-line result summary.
const resultSentinel = "RESULT: "

// extractResult pulls the handler's result text from its stdout: the
// last line carrying the sentinel prefix wins. Without a sentinel the
// whole stdout is the result, and an entirely silent success reads as
// "ok". The caller truncates for the 1500-char result property and
// chunks the full text for the record body.
func extractResult(stdout string) string {
	var found string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, resultSentinel) {
			found = strings.TrimSpace(strings.TrimPrefix(line, resultSentinel))
		}
	}
	if found != "" {
		return found
	}
	if stdout != "" {
		return stdout
	}
	return "ok"
}

// chunkLines splits text into chunks of at most maxLen characters,
// breaking only on line boundaries so no line is ever split across
// chunks. A single line longer than maxLen becomes its own oversized
// chunk; the store property limits make that case pathological enough
// not to split mid-line.
func chunkLines(text string, maxLen int) []string {
	if text == "" {
		return nil
	}

	var chunks []string
	var current []string
	size := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		addLen := len(line)
		if len(current) > 0 {
			addLen++ // joining newline
		}
		if size+addLen > maxLen && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = []string{line}
			size = len(line)
			continue
		}
		current = append(current, line)
		size += addLen
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}
