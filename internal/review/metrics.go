package review

import "strings"

// MetricsHeading starts the section the server generates and appends to an
// entry's observations. Everything above it is user content.
const MetricsHeading = "## Metrics Snapshot"

// Split separates user content from the generated metrics section. The
// metrics part includes the heading line; it is empty when the heading is
// absent.
func Split(md string) (user, metrics string) {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == MetricsHeading {
			user = strings.Join(lines[:i], "\n")
			metrics = strings.Join(lines[i:], "\n")
			return strings.TrimSpace(user), strings.TrimSpace(metrics)
		}
	}
	return strings.TrimSpace(md), ""
}

// UserContent returns the observations without the metrics section.
func UserContent(md string) string {
	user, _ := Split(md)
	return user
}

// Metrics returns only the metrics section, heading included.
func Metrics(md string) string {
	_, metrics := Split(md)
	return metrics
}
