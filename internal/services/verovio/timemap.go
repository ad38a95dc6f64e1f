package verovio

import (
	"encoding/json"
	"fmt"
	"sort"
)

// timemapEntry is one row of the engraver's timemap output.
type timemapEntry struct {
	Tstamp float64  `json:"tstamp"`
	On     []string `json:"on"`
	Off    []string `json:"off"`
}

type timemap []timemapEntry

func parseTimemap(data []byte) (timemap, error) {
	var entries timemap
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode timemap: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tstamp < entries[j].Tstamp })
	return entries, nil
}

// sounding replays the timemap up to ms and returns the notes left on.
func (tm timemap) sounding(ms float64) []string {
	on := make(map[string]struct{})
	for _, entry := range tm {
		if entry.Tstamp > ms {
			break
		}
		for _, id := range entry.Off {
			delete(on, id)
		}
		for _, id := range entry.On {
			on[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(on))
	for id := range on {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
