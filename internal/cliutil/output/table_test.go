package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTable struct {
	headers []string
	rows    [][]string
}

func (t testTable) Headers() []string { return t.headers }
func (t testTable) Rows() [][]string  { return t.rows }

func TestPrintTable(t *testing.T) {
	table := testTable{
		headers: []string{"Name", "Value"},
		rows:    [][]string{{"key1", "value1"}, {"key2", "value2"}},
	}

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "VALUE")
	assert.Contains(t, output, "key1")
	assert.Contains(t, output, "value1")
}

func TestSimpleTable(t *testing.T) {
	pairs := [][2]string{
		{"Key1", "Value1"},
		{"Key2", "Value2"},
	}

	var buf bytes.Buffer
	err := SimpleTable(&buf, pairs)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Key1")
	assert.Contains(t, output, "Value1")
	assert.Contains(t, output, "Key2")
	assert.Contains(t, output, "Value2")
}

func TestPrintOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintOutput(&buf, FormatJSON, map[string]string{"a": "b"}, false, "", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"a": "b"`)
}

func TestPrintOutput_EmptyShowsMessage(t *testing.T) {
	var buf bytes.Buffer
	err := PrintOutput(&buf, FormatTable, []string{}, true, "No results found.", nil)
	require.NoError(t, err)
	assert.Equal(t, "No results found.\n", buf.String())
}

func TestPrintOutput_Table(t *testing.T) {
	table := testTable{headers: []string{"A"}, rows: [][]string{{"1"}}}

	var buf bytes.Buffer
	err := PrintOutput(&buf, FormatTable, nil, false, "", table)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "1")
}
