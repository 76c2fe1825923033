package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func coverage(rows int) Dataset {
	data := Dataset{Title: "Archive coverage", Headers: []string{"course", "activity", "archived"}}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, map[string]string{
			"course":   "3",
			"activity": fmt.Sprintf("%d", 17+i),
			"archived": "yes",
		})
	}
	return data
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" PDF ")
	require.NoError(t, err)
	require.Equal(t, FormatPDF, f)

	_, err = ParseFormat("xlsx")
	require.Error(t, err)
}

func TestCSVRendersRowsInHeaderOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(coverage(2))
	require.NoError(t, err)
	require.Equal(t, "course,activity,archived\n3,17,yes\n3,18,yes\n", string(out))
}

func TestRenderersRequireHeaders(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatPDF} {
		r, err := NewRenderer(format)
		require.NoError(t, err)
		_, err = r.Render(Dataset{})
		require.Error(t, err)
	}
}

func TestPDFSpansPages(t *testing.T) {
	r, err := NewRenderer(FormatPDF)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", r.ContentType())

	out, err := r.Render(coverage(120))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	require.Greater(t, bytes.Count(out, []byte("/Type /Page\n")), 1)
}
