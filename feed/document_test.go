package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const persisted = `{
  "channels": {
    "UC1": {"name": "One", "uploadsPlaylistId": "UU1", "categories": ["News"], "color": "#f00"}
  },
  "generator": {"version": 2},
  "videos": [
    {
      "id": "v1",
      "title": "Rock & Roll <live>",
      "thumbnail": "https://i.ytimg.com/vi/v1/mqdefault.jpg",
      "channelTitle": "One",
      "channelId": "UC1",
      "sourceChannelId": "UC1",
      "publishedAt": "2024-01-02T00:00:00Z",
      "categories": ["News"],
      "isShort": true,
      "views": 42
    }
  ]
}`

func TestDocument_PreservesUnknownKeys(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(persisted), &doc))

	require.Len(t, doc.Videos, 1)
	v := doc.Videos[0]
	assert.Equal(t, "v1", v.ID)
	assert.True(t, v.IsShort)
	assert.JSONEq(t, "42", string(v.Extra["views"]))
	assert.NotContains(t, v.Extra, "title")
	assert.JSONEq(t, `"#f00"`, string(doc.Channels["UC1"].Extra["color"]))
	assert.JSONEq(t, `{"version": 2}`, string(doc.Extra["generator"]))

	out, err := Encode(&doc)
	require.NoError(t, err)
	assert.JSONEq(t, persisted, string(out))
	assert.Contains(t, string(out), "Rock & Roll <live>")
}

func TestDocument_StableEncoding(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(persisted), &doc))

	first, err := Encode(&doc)
	require.NoError(t, err)

	var again Document
	require.NoError(t, json.Unmarshal(first, &again))
	second, err := Encode(&again)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestDocument_LegacyArray(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"a","publishedAt":"2024-01-01T00:00:00Z"}]`), &doc))

	require.Len(t, doc.Videos, 1)
	assert.Equal(t, "a", doc.Videos[0].ID)
	assert.NotNil(t, doc.Channels)
}

func TestDocument_EmptyEncodesCollections(t *testing.T) {
	out, err := Encode(NewDocument())
	require.NoError(t, err)
	assert.JSONEq(t, `{"channels": {}, "videos": []}`, string(out))

	v, err := json.Marshal(Video{ID: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(v), `"categories":[]`)
	assert.NotContains(t, string(v), "sourceChannelId")
}

func TestVideo_OwnerID(t *testing.T) {
	assert.Equal(t, "@h", Video{ChannelID: "UC1", SourceChannelID: "@h"}.OwnerID())
	assert.Equal(t, "UC1", Video{ChannelID: "UC1"}.OwnerID())
}

func TestDocument_Clone(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(persisted), &doc))

	c := doc.Clone()
	c.Videos[0].Categories[0] = "changed"
	c.Videos[0].Extra["views"][0] = '9'
	ch := c.Channels["UC1"]
	ch.Categories[0] = "changed"

	assert.Equal(t, "News", doc.Videos[0].Categories[0])
	assert.JSONEq(t, "42", string(doc.Videos[0].Extra["views"]))
	assert.Equal(t, "News", doc.Channels["UC1"].Categories[0])
}
