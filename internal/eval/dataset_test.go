package eval

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadJSONL(t *testing.T) {
	input := `{"id":"z1","question":" Thuế thu nhập cá nhân? ","relevant_doc_ids":["luat-thue_5","luat-thue_5"]}

{"question":"Quyền thừa kế","relevant_doc_ids":["blds_612"]}
`
	queries, err := ReadJSONL(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, queries, 2)

	assert.Equal(t, "z1", queries[0].ID)
	assert.Equal(t, "Thuế thu nhập cá nhân?", queries[0].Question)
	assert.Equal(t, []string{"luat-thue_5"}, queries[0].RelevantDocIDs)
	assert.Equal(t, "q2", queries[1].ID)
}

func TestReadJSONLRejectsUnlabelledQuestion(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader(`{"question":"q","relevant_doc_ids":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func buildWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cellName, &row))
	}
	path := filepath.Join(t.TempDir(), "dataset.xlsx")
	require.NoError(t, book.SaveAs(path))
	return path
}

func TestLoadDatasetFromXLSX(t *testing.T) {
	path := buildWorkbook(t, [][]any{
		{"Question", "relevant_doc_ids", "note"},
		{"Thuế thu nhập cá nhân?", "luat-thue_5; luat-thue_6", "x"},
		{"", "", ""},
		{"Quyền thừa kế", "blds_612", ""},
	})

	queries, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, []string{"luat-thue_5", "luat-thue_6"}, queries[0].RelevantDocIDs)
	assert.Equal(t, "q2", queries[1].ID)
}

func TestReadXLSXRequiresHeaderColumns(t *testing.T) {
	path := buildWorkbook(t, [][]any{{"text", "docs"}, {"q", "d1"}})
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = ReadXLSX(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question")
}

func TestLoadDatasetRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte("question\n"), 0o644))

	_, err := LoadDataset(path)
	require.Error(t, err)
}
