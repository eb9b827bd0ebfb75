package hls

import (
	"sort"

	"github.com/omniget/omniget/internal/errs"
)

// maxPreferredHeight caps automatic variant selection. Streams above this are
// skipped unless nothing at or below it exists.
const maxPreferredHeight = 720

// SelectVariant picks the variant to download: I-frame-only trick streams
// are discarded, then the highest resolution at or below 720p wins. When no
// variant advertises a usable resolution at or below the cap, the lowest
// bandwidth variant is the safe fallback.
func SelectVariant(variants []Variant) (*Variant, error) {
	playable := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.IFrameOnly {
			continue
		}
		playable = append(playable, v)
	}
	if len(playable) == 0 {
		return nil, errs.New(errs.KindPlaylistParse, "no playable variants in master playlist")
	}

	sort.SliceStable(playable, func(i, j int) bool {
		if playable[i].Height != playable[j].Height {
			return playable[i].Height < playable[j].Height
		}
		return playable[i].Bandwidth < playable[j].Bandwidth
	})

	var best *Variant
	for i := range playable {
		if playable[i].Height > 0 && playable[i].Height <= maxPreferredHeight {
			best = &playable[i]
		}
	}
	if best != nil {
		return best, nil
	}

	// Nothing at or below the cap (or no resolutions advertised at all).
	lowest := &playable[0]
	for i := range playable {
		if playable[i].Bandwidth < lowest.Bandwidth {
			lowest = &playable[i]
		}
	}
	return lowest, nil
}
