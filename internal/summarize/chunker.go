package summarize

import (
	"fmt"
	"strings"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/store"
)

// DefaultChunkCeiling bounds the approximate cost of one completion block.
// Calibrated to keep a block safely under the completion service's request
// limit; tunable via config.
const DefaultChunkCeiling = 3200

// lineCost estimates the completion-service cost of one transcript line.
// Cheap proxy for sub-word token cost: ~4 characters per unit, minimum 1.
func lineCost(line string) int {
	cost := len(line) / 4
	if cost < 1 {
		cost = 1
	}
	return cost
}

// FormatLines renders messages as "[HH:MM] author: text" transcript lines,
// dropping entries whose text trims to empty. Times render in each entry's
// own timezone.
func FormatLines(msgs []store.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), m.Author, text))
	}
	return lines
}

// SplitBlocks greedily packs lines into blocks whose summed cost stays at
// or under ceiling. The running block closes when the next line would push
// it over and it already holds something; a line whose own cost exceeds the
// ceiling still gets a block to itself. Lines are never split, dropped, or
// reordered: joining the returned blocks with newlines reproduces the input
// sequence exactly.
func SplitBlocks(lines []string, ceiling int) []string {
	if ceiling <= 0 {
		ceiling = DefaultChunkCeiling
	}

	var blocks []string
	var current []string
	size := 0

	for _, line := range lines {
		cost := lineCost(line)
		if len(current) > 0 && size+cost > ceiling {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
			size = 0
		}
		current = append(current, line)
		size += cost
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}
