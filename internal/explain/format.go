package explain

import (
	"math"
	"strconv"
	"strings"
)

// Format renders a report: one line per metric in report order, then the
// warnings verbatim, then the verdict sentence.
func Format(r *Report) string {
	lines := make([]string, 0, len(r.Metrics)+len(r.Warnings)+1)

	for _, m := range r.Metrics {
		var sb strings.Builder
		sb.WriteString(m.Label)
		sb.WriteString(": ")
		sb.WriteString(FormatNumber(m.Value))
		if m.Value < m.Lower {
			sb.WriteString(" is less than ")
			sb.WriteString(FormatNumber(m.Lower))
		}
		if m.Upper != nil && m.Value > *m.Upper {
			sb.WriteString(" is more than ")
			sb.WriteString(FormatNumber(*m.Upper))
		}
		lines = append(lines, sb.String())
	}

	lines = append(lines, r.Warnings...)

	if r.Submittable {
		lines = append(lines, SentenceSubmittable)
	} else {
		lines = append(lines, SentenceNotSubmittable)
	}
	return strings.Join(lines, "\n")
}

// FormatNumber renders v the way the model has always seen numbers: the
// shortest round-tripping decimal, always with a fractional part ("1.0"),
// switching to exponent form below 1e-4 and from 1e16.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
