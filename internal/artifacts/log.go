package artifacts

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mark3labs/monet/internal/provider"
)

const (
	headerPrompt  = "Prompt:"
	headerCanvas  = "Canvas:"
	headerSession = "Session:"
	tokensPrefix  = "Tokens:"
	planHeader    = "== Plan =="

	// promptIndent marks continuation lines of a multi-line prompt.
	promptIndent = "  "
	// escapeMark prefixes note lines that would read as block headers.
	escapeMark = `\`
)

// formatPrompt writes the prompt header; lines after the first are indented.
func formatPrompt(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = promptIndent + lines[i]
	}
	return headerPrompt + " " + strings.Join(lines, "\n") + "\n"
}

// escapeBody escapes note lines starting with "==" or the escape mark so
// ParseLog keeps them inside their block.
func escapeBody(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "==") || strings.HasPrefix(line, escapeMark) {
			lines[i] = escapeMark + line
		}
	}
	return strings.Join(lines, "\n")
}

func unescapeLine(line string) string {
	return strings.TrimPrefix(line, escapeMark)
}

func blockHeader(iteration int) string {
	if iteration == 0 {
		return planHeader
	}
	return fmt.Sprintf("== Iteration %d ==", iteration)
}

// parseBlockHeader returns the iteration of a block header line.
func parseBlockHeader(line string) (int, bool) {
	if line == planHeader {
		return 0, true
	}
	rest, ok := strings.CutPrefix(line, "== Iteration ")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, " ==")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func tokensLine(u provider.Usage) string {
	return fmt.Sprintf("%s in=%d out=%d cache_read=%d cache_write=%d thinking=%d",
		tokensPrefix, u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheCreationTokens, u.ThinkingTokens)
}

func parseTokensLine(line string) (provider.Usage, bool) {
	rest, ok := strings.CutPrefix(line, tokensPrefix)
	if !ok {
		return provider.Usage{}, false
	}
	var u provider.Usage
	for _, field := range strings.Fields(rest) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		switch key {
		case "in":
			u.InputTokens = n
		case "out":
			u.OutputTokens = n
		case "cache_read":
			u.CacheReadTokens = n
		case "cache_write":
			u.CacheCreationTokens = n
		case "thinking":
			u.ThinkingTokens = n
		}
	}
	return u, true
}

// LogEntry is one note block of the artist log.
type LogEntry struct {
	Iteration int // 0 for the plan
	Text      string
	Usage     provider.Usage
}

// Log is a parsed artist log.
type Log struct {
	Prompt     string
	Session    string
	Width      int
	Height     int
	Background string
	Entries    []LogEntry
}

// ParseLog reads an artist log.
func ParseLog(r io.Reader) (*Log, error) {
	log := &Log{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		current  *LogEntry
		body     []string
		inBody   bool
		inPrompt bool
	)
	flush := func() {
		if current != nil {
			current.Text = strings.TrimSpace(strings.Join(body, "\n"))
			log.Entries = append(log.Entries, *current)
		}
		current, body, inBody = nil, nil, false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if iter, ok := parseBlockHeader(line); ok {
			flush()
			current = &LogEntry{Iteration: iter}
			continue
		}
		if current == nil {
			if inPrompt {
				if rest, ok := strings.CutPrefix(line, promptIndent); ok {
					log.Prompt += "\n" + rest
					continue
				}
				inPrompt = false
			}
			if err := log.parseHeader(line); err != nil {
				return nil, err
			}
			inPrompt = strings.HasPrefix(line, headerPrompt)
			continue
		}
		if !inBody {
			if u, ok := parseTokensLine(line); ok {
				current.Usage = u
				continue
			}
			inBody = true
		}
		body = append(body, unescapeLine(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading artist log: %w", err)
	}
	flush()

	log.Prompt = strings.TrimSpace(log.Prompt)
	if log.Prompt == "" {
		return nil, fmt.Errorf("artist log has no %s header", headerPrompt)
	}
	return log, nil
}

func (l *Log) parseHeader(line string) error {
	switch {
	case strings.HasPrefix(line, headerPrompt):
		l.Prompt = strings.TrimSpace(strings.TrimPrefix(line, headerPrompt))
	case strings.HasPrefix(line, headerSession):
		l.Session = strings.TrimSpace(strings.TrimPrefix(line, headerSession))
	case strings.HasPrefix(line, headerCanvas):
		fields := strings.Fields(strings.TrimPrefix(line, headerCanvas))
		if len(fields) == 0 {
			return fmt.Errorf("malformed %s header: %q", headerCanvas, line)
		}
		if _, err := fmt.Sscanf(fields[0], "%dx%d", &l.Width, &l.Height); err != nil {
			return fmt.Errorf("malformed %s header: %q", headerCanvas, line)
		}
		if len(fields) > 1 {
			l.Background = fields[1]
		}
	}
	return nil
}
