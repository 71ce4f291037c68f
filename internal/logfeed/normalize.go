// Package logfeed normalizes the trading process's heterogeneous log lines
// into canonical records and holds the bounded buffer the rendering layer
// reads. Lines arrive in several generations of timestamp/level framing
// depending on whether the structured emitter or the process supervisor
// stamped them; the normalizer tries each known format in order and always
// produces a structurally valid record (or drops the line entirely).
package logfeed

import (
	"regexp"
	"strings"
	"time"

	"github.com/rcheng-dev/botconsole/internal/model"
)

// Divider replaces messages that are nothing but a run of '=' or '-'
// characters. The upstream emitter prints those as section separators; we
// render a fixed-width glyph run instead of the raw line.
const Divider = "────────────────────────"

var (
	// supervisor prefix: "3|dsok-bot | 2025-11-05T17:42:02: msg"
	reSupervisorPrefix = regexp.MustCompile(`^\d+\|[^|]+\|\s*`)

	// format 1: "2025-11-05 17:42:02 - INFO - msg"
	reLevelLine = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} (\d{2}:\d{2}:\d{2}) - ([A-Za-z]+) - (.*)$`)
	// format 2: "2025-11-05T17:42:02: msg"
	reStampedLine = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T(\d{2}:\d{2}:\d{2}):\s*(.*)$`)
	// format 3: "2025-11-05 17:42:02,123 - INFO - msg"
	reMillisLine = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} (\d{2}:\d{2}:\d{2}),\d{3} - ([A-Za-z]+) - (.*)$`)
	// format 4: "[2025-11-05 17:42:02] msg"
	reBracketLine = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} (\d{2}:\d{2}:\d{2})\]\s*(.*)$`)

	reAnyTime = regexp.MustCompile(`\d{2}:\d{2}:\d{2}`)

	// residual stamp left inside the message after frame extraction
	// (double-stamped lines: supervisor stamp wrapping an emitter stamp)
	reResidualStamp = regexp.MustCompile(`^\[?\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:,\d{3})?\]?:?\s*(?:-\s*[A-Za-z]+\s*-\s*)?`)
	// residual level token: "[ts] INFO: msg" or a bare "ERROR: msg" line.
	// Restricted to known level words so "Price: 64000" keeps its prefix.
	reResidualLevel = regexp.MustCompile(`^(?i)(INFO|DEBUG|WARNING|WARN|ERROR|CRITICAL|FATAL|SUCCESS):\s*`)

	reDivider = regexp.MustCompile(`^(?:={10,}|-{10,})$`)
)

// Normalizer turns raw log lines into canonical records. The zero value is
// not usable; construct with New.
type Normalizer struct {
	now func() time.Time
}

func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock pins the wall clock used by the no-timestamp fallback path.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize parses one raw line. The second return is false when the line
// carries no message after stripping, in which case no record is produced.
// Malformed input never fails: the worst case is the fallback path, which
// stamps the line with the current wall clock and level INFO.
func (n *Normalizer) Normalize(raw string) (model.LogRecord, bool) {
	line := strings.TrimSpace(reSupervisorPrefix.ReplaceAllString(strings.TrimSpace(raw), ""))

	var (
		timeOfDay string
		level     model.Severity
		message   string
	)

	switch {
	case reLevelLine.MatchString(line):
		m := reLevelLine.FindStringSubmatch(line)
		timeOfDay, level, message = m[1], severityFromLevel(m[2]), m[3]
	case reStampedLine.MatchString(line):
		m := reStampedLine.FindStringSubmatch(line)
		timeOfDay, level, message = m[1], model.SeverityInfo, m[2]
	case reMillisLine.MatchString(line):
		m := reMillisLine.FindStringSubmatch(line)
		timeOfDay, level, message = m[1], severityFromLevel(m[2]), m[3]
	case reBracketLine.MatchString(line):
		m := reBracketLine.FindStringSubmatch(line)
		timeOfDay, level, message = m[1], model.SeverityInfo, m[2]
	default:
		if t := reAnyTime.FindString(line); t != "" {
			timeOfDay = t
		} else {
			timeOfDay = n.now().Format("15:04:05")
		}
		level = model.SeverityInfo
		message = line
	}

	var residual model.Severity
	message, residual = stripResidualFrame(message)
	message = strings.TrimSpace(message)
	if residual != model.SeverityInfo {
		level = residual
	}
	if message == "" {
		return model.LogRecord{}, false
	}
	if reDivider.MatchString(message) {
		message = Divider
	}

	category, sev := Classify(message)
	if sev == model.SeverityInfo {
		sev = level
	}

	return model.LogRecord{
		TimeOfDay: timeOfDay,
		Message:   message,
		Severity:  sev,
		Category:  category,
	}, true
}

// NormalizeAll maps a raw batch to records, dropping empty lines.
func (n *Normalizer) NormalizeAll(lines []string) []model.LogRecord {
	out := make([]model.LogRecord, 0, len(lines))
	for _, line := range lines {
		if rec, ok := n.Normalize(line); ok {
			out = append(out, rec)
		}
	}
	return out
}

// stripResidualFrame removes any leading embedded timestamp or level
// token left by double-stamping, folding a peeled level into the returned
// severity. Repeats until no frame remains, so a supervisor stamp wrapping
// an emitter's "[ts] ERROR: msg" is fully peeled.
func stripResidualFrame(msg string) (string, model.Severity) {
	sev := model.SeverityInfo
	for {
		stripped := reResidualStamp.ReplaceAllString(msg, "")
		if m := reResidualLevel.FindStringSubmatch(stripped); m != nil {
			if s := severityFromLevel(m[1]); s != model.SeverityInfo {
				sev = s
			}
			stripped = stripped[len(m[0]):]
		}
		if stripped == msg {
			return msg, sev
		}
		msg = stripped
	}
}

func severityFromLevel(level string) model.Severity {
	switch strings.ToUpper(level) {
	case "ERROR", "CRITICAL", "FATAL":
		return model.SeverityError
	case "WARNING", "WARN":
		return model.SeverityWarning
	case "SUCCESS":
		return model.SeveritySuccess
	default:
		return model.SeverityInfo
	}
}
