package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"mediaflow/internal/store"
)

// Subtitle output formats.
const (
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
	FormatJSON = "json"
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm (SRT) or HH:MM:SS.mmm (VTT).
func FormatTimestamp(seconds float64, sep byte) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	ms := total % 1000
	s := (total / 1000) % 60
	m := (total / 60000) % 60
	h := total / 3600000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

// RenderSRT renders segments as SRT: index, time range, text, blank line.
func RenderSRT(segments []store.Segment) []byte {
	var buf bytes.Buffer
	for i, seg := range segments {
		fmt.Fprintf(&buf, "%d\n%s --> %s\n%s\n\n", i+1,
			FormatTimestamp(seg.Start, ','), FormatTimestamp(seg.End, ','), strings.TrimSpace(seg.Text))
	}
	return buf.Bytes()
}

// RenderVTT renders segments as WebVTT.
func RenderVTT(segments []store.Segment) []byte {
	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n\n")
	for i, seg := range segments {
		fmt.Fprintf(&buf, "%d\n%s --> %s\n%s\n\n", i+1,
			FormatTimestamp(seg.Start, '.'), FormatTimestamp(seg.End, '.'), strings.TrimSpace(seg.Text))
	}
	return buf.Bytes()
}

// Render renders segments in the named format.
func Render(format string, segments []store.Segment) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatSRT, "":
		return RenderSRT(segments), nil
	case FormatVTT:
		return RenderVTT(segments), nil
	case FormatJSON:
		if segments == nil {
			segments = []store.Segment{}
		}
		return json.MarshalIndent(segments, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported subtitle format %q", format)
	}
}

// ParseSRT parses SRT text into segments. It accepts '.' as the millisecond
// separator and CRLF line endings.
func ParseSRT(data []byte) ([]store.Segment, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	var segments []store.Segment
	for n, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			return nil, fmt.Errorf("cue %d: truncated block", n+1)
		}
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err != nil {
			return nil, fmt.Errorf("cue %d: invalid index %q", n+1, lines[0])
		}
		startText, endText, ok := strings.Cut(lines[1], "-->")
		if !ok {
			return nil, fmt.Errorf("cue %d: missing time range", n+1)
		}
		start, err := parseTimestamp(startText)
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", n+1, err)
		}
		end, err := parseTimestamp(endText)
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", n+1, err)
		}
		if end < start {
			return nil, fmt.Errorf("cue %d: end before start", n+1)
		}
		segments = append(segments, store.Segment{
			Order: n,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], "\n"),
		})
	}
	return segments, nil
}

func parseTimestamp(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ".", ",")
	clock, millisText, ok := strings.Cut(value, ",")
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(millisText)
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
