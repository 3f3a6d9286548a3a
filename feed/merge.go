package feed

import "slices"

// MergeStats counts the entries a merge changed.
type MergeStats struct {
	ChannelsUpdated int `json:"channels_updated"`
	VideosUpdated   int `json:"videos_updated"`
}

// Merge returns a copy of doc with the categories of every registered channel
// and of each video owned by one replaced by the registry value. categories
// maps channel id to its registry categories. Channels and videos that are not
// in the registry are kept unchanged. doc is not modified.
//
// Only entries whose categories actually change are counted, so merging a
// document with its own output reports no updates.
func Merge(doc *Document, categories map[string][]string) (*Document, MergeStats) {
	if doc == nil {
		doc = NewDocument()
	}
	out := doc.Clone()
	var stats MergeStats

	for id, ch := range out.Channels {
		cats, ok := categories[id]
		if !ok {
			continue
		}
		if !sameCategories(ch.Categories, cats) {
			ch.Categories = nonNil(slices.Clone(cats))
			out.Channels[id] = ch
			stats.ChannelsUpdated++
		}
	}

	for i := range out.Videos {
		v := &out.Videos[i]
		cats, ok := categories[v.OwnerID()]
		if !ok {
			continue
		}
		if !sameCategories(v.Categories, cats) {
			v.Categories = nonNil(slices.Clone(cats))
			stats.VideosUpdated++
		}
	}

	return out, stats
}

// sameCategories compares by value. nil and empty are equal.
func sameCategories(a, b []string) bool {
	return slices.Equal(a, b)
}
