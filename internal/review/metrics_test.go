package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		md      string
		user    string
		metrics string
	}{
		{"no section", "Groceries up.\n", "Groceries up.", ""},
		{"empty", "", "", ""},
		{
			"section",
			"Groceries up.\n\n## Metrics Snapshot\n\n- **Net:** €5,696.86\n",
			"Groceries up.",
			"## Metrics Snapshot\n\n- **Net:** €5,696.86",
		},
		{"only section", "## Metrics Snapshot\n- a", "", "## Metrics Snapshot\n- a"},
		{"indented heading", "note\n  ## Metrics Snapshot  \nx", "note", "## Metrics Snapshot  \nx"},
		{"other heading kept", "## Notes\nfine\n### Metrics Snapshot", "## Notes\nfine\n### Metrics Snapshot", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, metrics := Split(tt.md)
			assert.Equal(t, tt.user, user)
			assert.Equal(t, tt.metrics, metrics)
			assert.Equal(t, tt.user, UserContent(tt.md))
			assert.Equal(t, tt.metrics, Metrics(tt.md))
		})
	}
}
