package diff

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleReport() *Report {
	report := CompareFields(
		map[string]any{
			"email":    "a@acme.test",
			"order_id": map[string]any{"__class": "Order", "__primaryKey": 42.0},
			"address":  map[string]any{"city": "Paris"},
			"notes":    strings.Repeat("n", 12),
		},
		map[string]any{
			"email":    "b@acme.test",
			"order_id": map[string]any{"__class": "Order", "__primaryKey": 42.0},
			"address":  map[string]any{"city": "Paris"},
			"notes":    strings.Repeat("n", 12),
		},
	)
	report.Current = Side{Label: "v1", EntityType: "Customer", EntityKey: "1", Sequence: 1}
	report.Other = Side{Label: "v2", EntityType: "Customer", EntityKey: "1", Sequence: 2}
	return report
}

func TestRender(t *testing.T) {
	r := Renderer{TruncateAfter: 5}

	assert.Equal(t, Cell{Text: "Order#42", Full: "Order#42"}, r.Render(map[string]any{"__class": "Order", "__primaryKey": 42.0}))

	block := r.Render(map[string]any{"city": "Paris", "owner": map[string]any{"__class": "User", "__primaryKey": "u-1"}})
	assert.True(t, block.Block)
	assert.Equal(t, "city: Paris\nowner: User#u-1", block.Text)

	long := r.Render("abcdefgh")
	assert.True(t, long.Collapsed)
	assert.Equal(t, "abcde…", long.Text)
	assert.Equal(t, "abcdefgh", long.Full)

	assert.Equal(t, "3", r.Render(3.0).Text)
	assert.Equal(t, "", r.Render(nil).Text)
	assert.False(t, NewRenderer().Render(strings.Repeat("x", 200)).Collapsed)
}

func TestWithout(t *testing.T) {
	report := CompareFields(
		map[string]any{"updated_at": "t1", "items": []any{map[string]any{"sku": "A", "qty": 1}}},
		map[string]any{"updated_at": "t2", "items": []any{map[string]any{"sku": "B", "qty": 1}}},
	)
	require.True(t, report.HasChanges())

	filtered := report.Without("updated_at", "items[*].sku")
	assert.Equal(t, []string{"items[0].qty"}, filtered.Paths())
	assert.False(t, filtered.HasChanges())

	assert.Empty(t, report.Without("**").Paths())
	assert.Same(t, report, report.Without())
}

func TestUnified(t *testing.T) {
	out := sampleReport().Unified()
	assert.True(t, strings.HasPrefix(out, "--- v1\n+++ v2\n"))
	assert.Contains(t, out, "-  email: \"a@acme.test\"\n")
	assert.Contains(t, out, "+  email: \"b@acme.test\"\n")
	assert.Contains(t, out, "   order_id: \"Order#42\"\n")
	assert.Contains(t, out, " EntityType: Customer\n")
}

func TestWriteCSVUsesFullText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport(), Renderer{TruncateAfter: 4}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, []string{"email", "a@acme.test", "b@acme.test", "true"}, records[2])
	assert.Equal(t, strings.Repeat("n", 12), records[3][1])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleReport(), NewRenderer()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Diff")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"path", "v1", "v2", "changed"}, rows[0])
	assert.Equal(t, "address.city", rows[1][0])
	assert.Equal(t, "Order#42", rows[4][1])
}

func TestWriteFormats(t *testing.T) {
	report := sampleReport()

	var text bytes.Buffer
	require.NoError(t, Write(&text, report, NewRenderer(), FormatText))
	assert.Regexp(t, `(?m)^\*\s+email\s+a@acme\.test\s+b@acme\.test`, text.String())

	var js bytes.Buffer
	require.NoError(t, Write(&js, report, NewRenderer(), "JSON"))
	var doc struct {
		Current Side  `json:"current"`
		Rows    []Row `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(js.Bytes(), &doc))
	assert.Equal(t, "v1", doc.Current.Label)
	assert.Len(t, doc.Rows, 4)

	var yml bytes.Buffer
	require.NoError(t, Write(&yml, report, NewRenderer(), FormatYAML))
	assert.Contains(t, yml.String(), "path: email")

	assert.Error(t, Write(&bytes.Buffer{}, report, NewRenderer(), "pdf"))
}
