package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset(rows int) Dataset {
	data := Dataset{Title: "Roster", Headers: []string{"name", "email"}}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, map[string]string{"name": fmt.Sprintf("Student %d", i), "email": fmt.Sprintf("s%d@example.com", i)})
	}
	return data
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)

	format, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, format)
	assert.Equal(t, "application/pdf", format.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestRenderCSV(t *testing.T) {
	out, err := NewRenderer().Render(FormatCSV, Dataset{Headers: []string{"name", "email"}, Rows: []map[string]string{{"name": "Aisha"}}})
	require.NoError(t, err)
	assert.Equal(t, "name,email\nAisha,\n", string(out))
}

func TestRenderJSONEmpty(t *testing.T) {
	out, err := NewRenderer().Render(FormatJSON, Dataset{Headers: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestRenderPDFSpansPages(t *testing.T) {
	out, err := NewRenderer().Render(FormatPDF, rosterDataset(80))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := NewRenderer().Render(FormatCSV, Dataset{})
	assert.Error(t, err)
	_, err = NewRenderer().Render(FormatPDF, Dataset{})
	assert.Error(t, err)
}
