package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"loopdeck/internal/api"
	"loopdeck/internal/queue"
)

// buildQueueStatusRows orders counts by pipeline position. Statuses the
// queue package does not know sort last.
func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]struct{}, len(stats))
	for _, status := range queue.AllStatuses() {
		key := string(status)
		seen[key] = struct{}{}
		if count := stats[key]; count > 0 {
			rows = append(rows, []string{key, strconv.Itoa(count)})
		}
	}
	for key, count := range stats {
		if _, ok := seen[key]; ok || count == 0 {
			continue
		}
		rows = append(rows, []string{key, strconv.Itoa(count)})
	}
	return rows
}

func buildTrackRows(items []api.Track) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.SourceID,
			truncate(item.Title, 40),
			item.Status,
			strconv.Itoa(item.Attempts),
			truncate(valueOrDash(item.Outcome()), 48),
		})
	}
	return rows
}

var trackHeaders = []string{"Source ID", "Title", "Status", "Attempts", "Outcome"}
var trackNumericCols = []int{3}

func renderTrackDetail(item api.Track) string {
	var b strings.Builder
	field := func(label, value string) {
		fmt.Fprintf(&b, "%-16s %s\n", label+":", valueOrDash(value))
	}
	field("Source ID", item.SourceID)
	field("Title", item.Title)
	field("Uploader", item.Uploader)
	field("Playlist", fmt.Sprintf("%s #%d", valueOrDash(item.PlaylistID), item.Position))
	field("Duration", fmt.Sprintf("%.1fs", item.DurationSeconds))
	field("License", item.License)
	field("Status", item.Status)
	field("Stage", item.Stage)
	field("Attempts", strconv.Itoa(item.Attempts))
	if item.VocalScore != nil {
		field("Vocal score", strconv.FormatFloat(*item.VocalScore, 'f', 3, 64))
	}
	if item.NeedsReview {
		field("Review", item.ReviewReason)
	}
	if item.RejectionReason != "" {
		field("Rejected", item.RejectionReason)
	}
	if item.FailedStatus != "" {
		field("Failed at", item.FailedStatus)
	}
	if item.ErrorMessage != "" {
		field("Error", item.ErrorMessage)
	}
	if item.NotBefore != "" {
		field("Not before", item.NotBefore)
	}
	if item.Progress.Message != "" {
		field("Progress", fmt.Sprintf("%s %.0f%% %s", item.Progress.Stage, item.Progress.Percent, item.Progress.Message))
	}
	field("Created", item.CreatedAt)
	field("Updated", item.UpdatedAt)
	for _, section := range []struct {
		label string
		raw   json.RawMessage
	}{
		{"Segment", item.Segment},
		{"Separation", item.Separation},
		{"Alignment", item.Alignment},
	} {
		if len(section.raw) == 0 {
			continue
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, section.raw, "  ", "  "); err != nil {
			pretty.Reset()
			pretty.Write(section.raw)
		}
		fmt.Fprintf(&b, "%s:\n  %s\n", section.label, pretty.String())
	}
	return b.String()
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
