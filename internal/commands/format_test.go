package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyTransforms(t *testing.T) {
	assert.Equal(t, "ID", pascalKey("id"))
	assert.Equal(t, "AlertCount", pascalKey("alertCount"))
	assert.Equal(t, "ComputerIpAddress", pascalKey("computerIPAddress"))

	assert.Equal(t, "processTableId", camelKey("process_table_id"))
	assert.Equal(t, "alreadyCamel", camelKey("alreadyCamel"))

	assert.Equal(t, "Process Table Id", headerLabel("processTableId"))
	assert.Equal(t, "Computer IP Address", headerLabel("computerIPAddress"))
	assert.Equal(t, "ID", headerLabel("ID"))
}

func TestBuildContext_DropsEmptyTopLevel(t *testing.T) {
	in := map[string]any{"a": "", "b": nil, "c": []any{}, "d": json.Number("0"), "e_f": map[string]any{"x": nil}}
	got := buildContext(in, camelKey)
	assert.Equal(t, map[string]any{"d": json.Number("0"), "eF": map[string]any{"x": nil}}, got)
}

func TestMsToDate(t *testing.T) {
	s, ok := msToDate(json.Number("1609459200123"))
	assert.True(t, ok)
	assert.Equal(t, "2021-01-01T00:00:00.123Z", s)

	_, ok = msToDate("yesterday")
	assert.False(t, ok)
}

func TestPaginateClamps(t *testing.T) {
	items := []any{1, 2, 3}
	assert.Equal(t, []any{2, 3}, paginate(items, 1, 50))
	assert.Empty(t, paginate(items, 10, 5))
	assert.Empty(t, paginate(items, 0, -1))
}

func TestMarkdownTable(t *testing.T) {
	out := markdownTable("Things", []any{
		map[string]any{"name": "a|b", "size": json.Number("3"), "unused": nil},
	}, []string{"name", "size", "unused"})

	assert.Contains(t, out, "### Things\n")
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Size")
	assert.NotContains(t, out, "Unused", "all-empty columns dropped")
	assert.Contains(t, out, `a\|b`)
}

func TestMarkdownTable_Empty(t *testing.T) {
	assert.Equal(t, "### Nothing\n**No entries.**\n", markdownTable("Nothing", nil, nil))
}

func TestFilterParams(t *testing.T) {
	params, n, err := filterParams(`[['a','eq','1']]`)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]string{"f0": "a", "o0": "eq", "v0": "1"}, params)

	params, n, err = filterParams("  ")
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, params)
}
