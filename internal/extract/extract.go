// Package extract turns natural-language messages into structured
// records, using the oracle as a parsing oracle. Task and event
// extraction are incremental: each turn's result is shallow-merged
// over the thread's existing partial record. The package also hosts
// the single-shot parameter extractors used by the read-only flows.
package extract

import (
	"fmt"
	"time"
)

// Merge overlays parsed on top of existing: the union of keys, with
// parsed winning on collision. Neither input is mutated.
func Merge(existing, parsed map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(parsed))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range parsed {
		merged[k] = v
	}
	return merged
}

var kanjiWeekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// dateContext renders the reference-date block every extraction prompt
// carries, so relative dates ("来月1日", "明日") resolve consistently.
func dateContext(now time.Time) string {
	return fmt.Sprintf(`- 今日の日付は%sです
- 現在の年は%d年です
- 現在の月は%d月です
- 現在の日は%d日です
- 現在の曜日は%s曜日です`,
		now.Format("2006-01-02"), now.Year(), int(now.Month()), now.Day(),
		kanjiWeekdays[now.Weekday()])
}
