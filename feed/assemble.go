package feed

import "sort"

// Assemble unions per-channel video lists in the given order, drops repeated
// video ids (first occurrence wins), sorts newest first and keeps at most
// limit entries. A non-positive limit means MaxVideos.
//
// Videos with an unparseable publishedAt sort after every dated video and keep
// their relative order.
func Assemble(lists [][]Video, limit int) []Video {
	if limit <= 0 {
		limit = MaxVideos
	}

	seen := make(map[string]struct{})
	var videos []Video
	for _, list := range lists {
		for _, v := range list {
			if _, dup := seen[v.ID]; dup {
				continue
			}
			seen[v.ID] = struct{}{}
			videos = append(videos, v)
		}
	}

	sort.SliceStable(videos, func(i, j int) bool {
		ti, okI := videos[i].Published()
		tj, okJ := videos[j].Published()
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI:
			return true
		default:
			return false
		}
	})

	if len(videos) > limit {
		videos = videos[:limit]
	}
	if videos == nil {
		videos = []Video{}
	}
	return videos
}
