// Package feed models the documents produced by a sync run and implements the
// pure transformations over them: assembling a feed from resolved uploads and
// merging registry categories into a persisted feed.
//
// Documents keep any JSON keys they do not know about, so a client that adds
// fields to the feed does not lose them on the next run.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MaxVideos is the default cap on the number of videos in a feed.
const MaxVideos = 100

// Video is one entry of the feed.
type Video struct {
	ID           string
	Title        string
	Thumbnail    string
	ChannelTitle string
	// ChannelID is the platform channel id reported for the upload.
	ChannelID string
	// SourceChannelID is the registry id the video was resolved from.
	SourceChannelID string
	// PublishedAt is the RFC 3339 timestamp as received from the platform.
	PublishedAt string
	Categories  []string
	IsShort     bool

	// Extra holds keys of a persisted entry that Video does not model.
	Extra map[string]json.RawMessage

	src *source
}

type videoJSON struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Thumbnail       string   `json:"thumbnail"`
	ChannelTitle    string   `json:"channelTitle"`
	ChannelID       string   `json:"channelId"`
	SourceChannelID string   `json:"sourceChannelId"`
	PublishedAt     string   `json:"publishedAt"`
	Categories      []string `json:"categories"`
	IsShort         bool     `json:"isShort"`
}

var videoKeys = []string{"id", "title", "thumbnail", "channelTitle", "channelId", "sourceChannelId", "publishedAt", "categories", "isShort"}

// OwnerID returns the channel the video belongs to for category lookups:
// the source channel when known, else the platform channel.
func (v Video) OwnerID() string {
	if v.SourceChannelID != "" {
		return v.SourceChannelID
	}
	return v.ChannelID
}

// Published parses PublishedAt. ok is false when the timestamp is unparseable.
func (v Video) Published() (t time.Time, ok bool) {
	t, err := time.Parse(time.RFC3339, v.PublishedAt)
	return t, err == nil
}

func (v Video) members() []member {
	return []member{
		{"id", v.ID, false},
		{"title", v.Title, false},
		{"thumbnail", v.Thumbnail, false},
		{"channelTitle", v.ChannelTitle, false},
		{"channelId", v.ChannelID, false},
		{"sourceChannelId", v.SourceChannelID, v.SourceChannelID == ""},
		{"publishedAt", v.PublishedAt, false},
		{"categories", nonNil(v.Categories), false},
		{"isShort", v.IsShort, false},
	}
}

func (v Video) MarshalJSON() ([]byte, error) {
	return marshalObject(v.members(), v.Extra, v.src)
}

func (v *Video) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	var raw videoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := extraKeys(data, videoKeys)
	if err != nil {
		return err
	}
	*v = Video{
		ID:              raw.ID,
		Title:           raw.Title,
		Thumbnail:       raw.Thumbnail,
		ChannelTitle:    raw.ChannelTitle,
		ChannelID:       raw.ChannelID,
		SourceChannelID: raw.SourceChannelID,
		PublishedAt:     raw.PublishedAt,
		Categories:      raw.Categories,
		IsShort:         raw.IsShort,
		Extra:           extra,
	}
	v.src, err = newSource(data, v.members())
	return err
}

// Channel is the metadata kept for a channel in the feed document.
type Channel struct {
	Name              string
	UploadsPlaylistID string
	Categories        []string

	Extra map[string]json.RawMessage

	src *source
}

type channelJSON struct {
	Name              string   `json:"name"`
	UploadsPlaylistID string   `json:"uploadsPlaylistId"`
	Categories        []string `json:"categories"`
}

var channelKeys = []string{"name", "uploadsPlaylistId", "categories"}

func (c Channel) members() []member {
	return []member{
		{"name", c.Name, false},
		{"uploadsPlaylistId", c.UploadsPlaylistID, c.UploadsPlaylistID == ""},
		{"categories", nonNil(c.Categories), false},
	}
}

func (c Channel) MarshalJSON() ([]byte, error) {
	return marshalObject(c.members(), c.Extra, c.src)
}

func (c *Channel) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}
	var raw channelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := extraKeys(data, channelKeys)
	if err != nil {
		return err
	}
	*c = Channel{
		Name:              raw.Name,
		UploadsPlaylistID: raw.UploadsPlaylistID,
		Categories:        raw.Categories,
		Extra:             extra,
	}
	c.src, err = newSource(data, c.members())
	return err
}

// Document is the persisted feed: channel metadata keyed by channel id and
// the newest videos, newest first.
type Document struct {
	Channels map[string]Channel
	Videos   []Video

	Extra map[string]json.RawMessage

	src          *source
	channelOrder []string
}

type documentJSON struct {
	Channels map[string]Channel `json:"channels"`
	Videos   []Video            `json:"videos"`
}

var documentKeys = []string{"channels", "videos"}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Channels: map[string]Channel{}, Videos: []Video{}}
}

func (d Document) MarshalJSON() ([]byte, error) {
	channels, err := d.encodeChannels()
	if err != nil {
		return nil, err
	}
	videos := d.Videos
	if videos == nil {
		videos = []Video{}
	}
	// The collections are always re-encoded; their entries keep their own bytes.
	return marshalObject([]member{
		{"channels", channels, false},
		{"videos", videos, false},
	}, d.Extra, d.src)
}

// encodeChannels writes the channel map in the order it was read, followed by
// channels added since in id order.
func (d Document) encodeChannels() (json.RawMessage, error) {
	ids := make([]string, 0, len(d.Channels))
	seen := make(map[string]bool, len(d.Channels))
	for _, id := range d.channelOrder {
		if _, ok := d.Channels[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	added := make([]string, 0, len(d.Channels)-len(ids))
	for id := range d.Channels {
		if !seen[id] {
			added = append(added, id)
		}
	}
	sort.Strings(added)
	ids = append(ids, added...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, id, d.Channels[id]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON also accepts a bare array of videos, the layout written by
// older feed generators.
func (d *Document) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var videos []Video
		if err := json.Unmarshal(trimmed, &videos); err != nil {
			return err
		}
		*d = *NewDocument()
		if videos != nil {
			d.Videos = videos
		}
		return nil
	}

	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra, err := extraKeys(data, documentKeys)
	if err != nil {
		return err
	}
	if raw.Channels == nil {
		raw.Channels = map[string]Channel{}
	}
	if raw.Videos == nil {
		raw.Videos = []Video{}
	}
	*d = Document{Channels: raw.Channels, Videos: raw.Videos, Extra: extra}

	// The document's own keys are always rewritten, so only their order and
	// the order of the channel ids are remembered.
	d.src = &source{raw: append(json.RawMessage(nil), data...)}
	return eachMember(data, func(key string, value json.RawMessage) error {
		if key != "channels" || isNull(value) {
			return nil
		}
		return eachMember(value, func(id string, _ json.RawMessage) error {
			d.channelOrder = append(d.channelOrder, id)
			return nil
		})
	})
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := &Document{
		Channels: make(map[string]Channel, len(d.Channels)),
		Videos:   make([]Video, len(d.Videos)),
		Extra:    cloneExtra(d.Extra),

		src:          d.src,
		channelOrder: d.channelOrder,
	}
	for id, c := range d.Channels {
		c.Categories = cloneStrings(c.Categories)
		c.Extra = cloneExtra(c.Extra)
		out.Channels[id] = c
	}
	for i, v := range d.Videos {
		v.Categories = cloneStrings(v.Categories)
		v.Extra = cloneExtra(v.Extra)
		out.Videos[i] = v
	}
	return out
}

// ChannelEntry is one element of ChannelsDocument.Channels.
type ChannelEntry struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	Category   string   `json:"category"`
}

// ChannelsDocument is the registry snapshot written on every run.
type ChannelsDocument struct {
	UpdatedAt string         `json:"updatedAt"`
	Channels  []ChannelEntry `json:"channels"`
}

// member is one known key of an object with its current value. omit drops
// the key when it is neither persisted nor set.
type member struct {
	key   string
	value any
	omit  bool
}

// source is the persisted form of a decoded object. base holds the encoding
// of each known member as decoded, so a member whose value is unchanged is
// written back byte for byte, or left out if it was absent.
type source struct {
	raw  json.RawMessage
	base map[string]string
}

func newSource(data []byte, members []member) (*source, error) {
	base := make(map[string]string, len(members))
	for _, m := range members {
		enc, err := encode(m.value)
		if err != nil {
			return nil, err
		}
		base[m.key] = string(enc)
	}
	return &source{raw: append(json.RawMessage(nil), data...), base: base}, nil
}

// marshalObject encodes the known members and the extra keys. Without a
// source the known members come first in declaration order, then the extra
// keys sorted. With a source the persisted key order is kept, unchanged
// members keep their persisted bytes, and only changed or new members are
// re-encoded.
func marshalObject(members []member, extra map[string]json.RawMessage, src *source) ([]byte, error) {
	current := make(map[string][]byte, len(members))
	omit := make(map[string]bool, len(members))
	for _, m := range members {
		enc, err := encode(m.value)
		if err != nil {
			return nil, err
		}
		current[m.key] = enc
		omit[m.key] = m.omit
	}
	unchanged := func(key string) bool {
		if src == nil || src.base == nil {
			return false
		}
		base, ok := src.base[key]
		return ok && base == string(current[key])
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	written := make(map[string]bool, len(members)+len(extra))

	if src != nil {
		err := eachMember(src.raw, func(key string, value json.RawMessage) error {
			if written[key] {
				return nil
			}
			if enc, known := current[key]; known {
				written[key] = true
				switch {
				case unchanged(key):
					return writeRaw(&buf, key, value)
				case omit[key]:
					return nil
				default:
					return writeRaw(&buf, key, enc)
				}
			}
			if v, ok := extra[key]; ok {
				written[key] = true
				return writeRaw(&buf, key, v)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	for _, m := range members {
		if written[m.key] || omit[m.key] || (src != nil && unchanged(m.key)) {
			continue
		}
		written[m.key] = true
		if err := writeRaw(&buf, m.key, current[m.key]); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !written[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeRaw(&buf, k, extra[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	enc, err := encode(value)
	if err != nil {
		return err
	}
	return writeRaw(buf, key, enc)
}

func writeRaw(buf *bytes.Buffer, key string, value []byte) error {
	name, err := encode(key)
	if err != nil {
		return err
	}
	if buf.Len() > 1 {
		buf.WriteByte(',')
	}
	buf.Write(name)
	buf.WriteByte(':')
	buf.Write(value)
	return nil
}

// eachMember calls fn for every member of the JSON object data, in order.
func eachMember(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode object: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode object: unexpected %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode object: %w", err)
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode object: %w", err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// encode is json.Marshal without HTML escaping, matching what browsers and
// the original documents produce for titles containing "&" or "<".
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// extraKeys returns the members of the JSON object data not named in known.
func extraKeys(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneExtra(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
