package rollup

import (
	"fmt"
	"strings"

	"github.com/ernie/craftbridge/internal/bridge"
	"github.com/ernie/craftbridge/internal/domain"
)

// maxChunkLength keeps each report message under the platform's embed field
// limit with headroom for formatting.
const maxChunkLength = 1900

// BuildReport renders the daily summary as one or more messages. Entries are
// packed greedily: a new chunk starts when the next entry would push the
// current one past maxChunkLength.
func BuildReport(date string, rows []domain.DailyStats) []string {
	var chunks []string
	var sb strings.Builder

	fmt.Fprintf(&sb, "**Daily server stats - %s**\n\n", date)

	for _, row := range rows {
		entry := formatEntry(row)
		if sb.Len() > 0 && sb.Len()+len(entry) > maxChunkLength {
			chunks = append(chunks, sb.String())
			sb.Reset()
		}
		sb.WriteString(entry)
	}

	if sb.Len() > 0 {
		chunks = append(chunks, sb.String())
	}
	return chunks
}

func formatEntry(row domain.DailyStats) string {
	name := row.GameName
	if name == "" {
		name = row.GameID
	}
	return fmt.Sprintf("**%s**\nKills: %d | Deaths: %d | Distance: %.1f blocks | Playtime: %s\n\n",
		name, row.Kills, row.Deaths, row.DistanceDaily, bridge.FormatMinutes(row.PlaytimeMinutes))
}
