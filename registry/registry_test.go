package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Basic(t *testing.T) {
	text := "id,name,category\nUC1,ChA,News;Tech\nUC2,ChB,\n"

	channels := Parse(text)
	require.Len(t, channels, 2)

	assert.Equal(t, "UC1", channels[0].ID)
	assert.Equal(t, "ChA", channels[0].Name)
	assert.Equal(t, []string{"News", "Tech"}, channels[0].Categories)
	assert.Equal(t, "News", channels[0].MainCategory)

	assert.Equal(t, "UC2", channels[1].ID)
	assert.Equal(t, "ChB", channels[1].Name)
	assert.Empty(t, channels[1].Categories)
	assert.Equal(t, "Other", channels[1].MainCategory)
}

func TestParse_SemicolonSeparator(t *testing.T) {
	text := "id;name;category\n@news;News, Inc;Politics, Local\nUC9;Nine;\n"

	channels := Parse(text)
	require.Len(t, channels, 2)
	assert.Equal(t, "@news", channels[0].ID)
	assert.Equal(t, "News, Inc", channels[0].Name)
	assert.Equal(t, []string{"Politics", "Local"}, channels[0].Categories)
	assert.Equal(t, "UC9", channels[1].ID)
}

func TestParse_HeaderOnly(t *testing.T) {
	assert.Empty(t, Parse("id,name,category\n"))

	_, err := Parser{}.ParseStrict("id,name,category\n")
	assert.ErrorIs(t, err, ErrEmptyRegistry)
}

func TestParse_Edges(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantIDs []string
	}{
		{"empty", "", nil},
		{"byte order mark", "\uFEFFid,name\nUC1,A\n", []string{"UC1"}},
		{"crlf and blank lines", "id,name\r\n\r\nUC1,A\r\n   \r\nUC2,B\r\n", []string{"UC1", "UC2"}},
		{"missing id column", "name,category\nA,News\n", nil},
		{"header case and order", " Category , NAME , Id \nNews,A,UC1\n", []string{"UC1"}},
		{"rows without id dropped", "id,name\n,NoID\n  ,Blank\nUC3,C\n", []string{"UC3"}},
		{"short rows", "name,category,id\nOnlyName\nB,News,UC2\n", []string{"UC2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, c := range Parse(tt.text) {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestParse_MissingCategoryColumn(t *testing.T) {
	channels := Parse("id,name\nUC1,A\n")
	require.Len(t, channels, 1)
	assert.Empty(t, channels[0].Categories)
	assert.Equal(t, DefaultFallbackCategory, channels[0].MainCategory)
}

func TestParser_CustomFallback(t *testing.T) {
	channels := Parser{Fallback: "Altres"}.Parse("id,name,category\nUC1,A,\n")
	require.Len(t, channels, 1)
	assert.Equal(t, "Altres", channels[0].MainCategory)
}

func TestParseStrict_Reasons(t *testing.T) {
	_, err := Parser{}.ParseStrict("name\nA\n")
	require.ErrorIs(t, err, ErrEmptyRegistry)
	assert.Contains(t, err.Error(), "missing id column")

	_, err = Parser{}.ParseStrict("id,name\n,A\n")
	require.ErrorIs(t, err, ErrEmptyRegistry)
	assert.Contains(t, err.Error(), "lacks an id")

	channels, err := Parser{}.ParseStrict("id\nUC1\n")
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}

func TestDetectSeparator(t *testing.T) {
	assert.Equal(t, ";", DetectSeparator("id;name;category"))
	assert.Equal(t, ",", DetectSeparator("id,name,category"))
	assert.Equal(t, ",", DetectSeparator("id;name,category"))
	assert.Equal(t, ";", DetectSeparator("id;name;category,extra"))
	assert.Equal(t, ",", DetectSeparator("id"))
}

func TestDedupe_LastWriteWins(t *testing.T) {
	channels := []Channel{
		{ID: "UC1", Name: "first"},
		{ID: "UC2", Name: "two"},
		{ID: "UC1", Name: "second"},
	}

	got := Dedupe(channels)
	require.Len(t, got, 2)
	assert.Equal(t, "UC1", got[0].ID)
	assert.Equal(t, "second", got[0].Name)
	assert.Equal(t, "UC2", got[1].ID)
}

func TestCategoryMap(t *testing.T) {
	m := CategoryMap([]Channel{
		{ID: "UC1", Categories: []string{"A"}},
		{ID: "UC1", Categories: []string{"B"}},
		{ID: "UC2", Categories: []string{}},
	})
	assert.Equal(t, []string{"B"}, m["UC1"])
	cats, ok := m["UC2"]
	assert.True(t, ok)
	assert.Empty(t, cats)
}
