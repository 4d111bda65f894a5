package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deepbridge/llm-bridge/bridge"
)

// dateTimeDefinition describes the datetime tool: parse, format, and
// manipulate dates and times across timezones.
var dateTimeDefinition = bridge.ToolDefinition{
	Name:        "datetime",
	Description: "Date and time operations: current time, formatting, parsing, calculations, timezone conversion",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type":        "string",
				"description": "Operation: current_time, format_date, parse_date, add_duration, date_diff, convert_timezone, day_of_week",
			},
			"date":     map[string]interface{}{"type": "string", "description": "Date string (format: 2006-01-02 or 2006-01-02 15:04:05)"},
			"format":   map[string]interface{}{"type": "string", "description": "Output format: RFC3339, RFC1123, Unix, or custom Go format"},
			"timezone": map[string]interface{}{"type": "string", "description": "Timezone (e.g., UTC, America/New_York, Asia/Tokyo)"},
			"duration": map[string]interface{}{"type": "string", "description": "Duration to add (e.g., 24h, 30m, 7d for days)"},
			"date2":    map[string]interface{}{"type": "string", "description": "Second date for comparison (date_diff)"},
		},
		"required": []interface{}{"operation"},
	},
}

func dateTimeHandler(ctx context.Context, call bridge.ToolCall, execCtx bridge.ToolExecutionContext) (interface{}, error) {
	var params struct {
		Operation string `json:"operation"`
		Date      string `json:"date"`
		Format    string `json:"format"`
		Timezone  string `json:"timezone"`
		Duration  string `json:"duration"`
		Date2     string `json:"date2"`
	}
	if err := decodeParams(call.Parameters, &params); err != nil {
		return nil, err
	}

	switch params.Operation {
	case "current_time":
		return currentTime(params.Timezone, params.Format)
	case "format_date":
		return formatDate(params.Date, params.Format, params.Timezone)
	case "parse_date":
		return parseDateDetails(params.Date, params.Timezone)
	case "add_duration":
		return addDuration(params.Date, params.Duration, params.Timezone)
	case "date_diff":
		return dateDiff(params.Date, params.Date2)
	case "convert_timezone":
		return convertTimezone(params.Date, params.Timezone)
	case "day_of_week":
		return dayOfWeek(params.Date)
	default:
		return nil, bridge.NewValidationError("datetime: unknown operation " + params.Operation)
	}
}

func currentTime(tz, format string) (string, error) {
	loc, err := location(tz)
	if err != nil {
		return "", err
	}
	now := time.Now().In(loc)
	return fmt.Sprintf("Current time in %s:\n%s\nUnix: %d", loc.String(), formatTime(now, format), now.Unix()), nil
}

func formatDate(dateStr, format, tz string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}
	if tz != "" {
		loc, err := location(tz)
		if err != nil {
			return "", err
		}
		t = t.In(loc)
	}
	return fmt.Sprintf("Formatted date:\n%s", formatTime(t, format)), nil
}

func parseDateDetails(dateStr, tz string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}
	if tz != "" {
		loc, err := location(tz)
		if err != nil {
			return "", err
		}
		t = t.In(loc)
	}

	var sb strings.Builder
	sb.WriteString("Parsed date details:\n")
	fmt.Fprintf(&sb, "  Date: %s\n", t.Format("2006-01-02"))
	fmt.Fprintf(&sb, "  Time: %s\n", t.Format("15:04:05"))
	fmt.Fprintf(&sb, "  Timezone: %s\n", t.Location())
	fmt.Fprintf(&sb, "  Day of week: %s\n", t.Weekday())
	fmt.Fprintf(&sb, "  Day of year: %d\n", t.YearDay())
	_, week := t.ISOWeek()
	fmt.Fprintf(&sb, "  Week number: %d\n", week)
	fmt.Fprintf(&sb, "  Unix timestamp: %d\n", t.Unix())
	fmt.Fprintf(&sb, "  RFC3339: %s\n", t.Format(time.RFC3339))
	return sb.String(), nil
}

func addDuration(dateStr, duration, tz string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}
	d, err := parseDayAwareDuration(duration)
	if err != nil {
		return "", err
	}
	newTime := t.Add(d)
	if tz != "" {
		loc, err := location(tz)
		if err != nil {
			return "", err
		}
		newTime = newTime.In(loc)
	}
	return fmt.Sprintf("Original: %s\nDuration: %s\nResult: %s", t.Format(time.RFC3339), duration, newTime.Format(time.RFC3339)), nil
}

func dateDiff(date1Str, date2Str string) (string, error) {
	t1, err := parseDateTime(date1Str)
	if err != nil {
		return "", bridge.NewValidationError("datetime: invalid date: " + err.Error())
	}
	t2, err := parseDateTime(date2Str)
	if err != nil {
		return "", bridge.NewValidationError("datetime: invalid date2: " + err.Error())
	}
	diff := t2.Sub(t1)
	days := int(diff.Hours() / 24)
	hours := int(diff.Hours()) % 24
	minutes := int(diff.Minutes()) % 60

	var sb strings.Builder
	fmt.Fprintf(&sb, "Date 1: %s\n", t1.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Date 2: %s\n", t2.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Difference: %d days, %d hours, %d minutes\n", days, hours, minutes)
	fmt.Fprintf(&sb, "Total hours: %.2f\n", diff.Hours())
	return sb.String(), nil
}

func convertTimezone(dateStr, targetTZ string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}
	loc, err := location(targetTZ)
	if err != nil {
		return "", err
	}
	converted := t.In(loc)
	return fmt.Sprintf("Original: %s (%s)\nConverted: %s (%s)", t.Format(time.RFC3339), t.Location(), converted.Format(time.RFC3339), loc), nil
}

func dayOfWeek(dateStr string) (string, error) {
	t, err := parseDateTime(dateStr)
	if err != nil {
		return "", err
	}
	_, week := t.ISOWeek()
	return fmt.Sprintf("Date: %s\nDay of week: %s\nWeek number: %d", t.Format("2006-01-02"), t.Weekday(), week), nil
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	time.RFC1123,
}

func parseDateTime(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, bridge.NewValidationError("datetime: date is required")
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, bridge.NewValidationError(fmt.Sprintf("datetime: unable to parse date %q", dateStr))
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, bridge.NewValidationError("datetime: invalid timezone " + tz)
	}
	return loc, nil
}

func formatTime(t time.Time, format string) string {
	switch strings.ToLower(format) {
	case "", "rfc3339":
		return t.Format(time.RFC3339)
	case "rfc1123":
		return t.Format(time.RFC1123)
	case "unix":
		return fmt.Sprintf("%d", t.Unix())
	default:
		return t.Format(format)
	}
}

func parseDayAwareDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "d"), "%d", &days); err != nil {
			return 0, bridge.NewValidationError("datetime: invalid duration " + s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, bridge.NewValidationError("datetime: invalid duration " + s)
	}
	return d, nil
}

// decodeParams re-marshals a tool call's loosely-typed parameter map into
// a concrete struct, the way each builtin handler validates its own
// arguments before dispatch.
func decodeParams(params map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return bridge.NewValidationError("invalid parameters: " + err.Error())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return bridge.NewValidationError("invalid parameters: " + err.Error())
	}
	return nil
}
