package handler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bookcatalog-backend/internal/domains/book/model"
)

func TestParseISBNFile_CSV(t *testing.T) {
	data := "ISBN,Title\n978-0-14-044913-6,Odyssey\n\n0140449132,Iliad\n"

	isbns, err := ParseISBNFile("books.CSV", strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"978-0-14-044913-6", "0140449132"}, isbns)
}

func TestParseISBNFile_CSVWithoutHeader(t *testing.T) {
	isbns, err := ParseISBNFile("books.csv", strings.NewReader("9780140449136\n9999999999999\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"9780140449136", "9999999999999"}, isbns)
}

func TestParseISBNFile_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "isbn"))
	require.NoError(t, f.SetCellValue(sheet, "A2", "9780140449136"))
	require.NoError(t, f.SetCellValue(sheet, "A3", "0140449132"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	isbns, err := ParseISBNFile("books.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"9780140449136", "0140449132"}, isbns)
}

func TestParseISBNFile_Errors(t *testing.T) {
	_, err := ParseISBNFile("books.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, model.ErrUnsupportedFile)

	_, err = ParseISBNFile("books.csv", strings.NewReader("isbn\n\n"))
	assert.ErrorIs(t, err, model.ErrEmptyImport)

	_, err = ParseISBNFile("books.xlsx", strings.NewReader("not a zip"))
	assert.Error(t, err)
}
