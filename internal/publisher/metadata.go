package publisher

import (
	"strings"

	"syndicate/internal/accounts"
)

// ShortsMarker is the tag short-form variants append so the hosting platform
// routes the upload into its vertical short-video surface.
const ShortsMarker = "#Shorts"

// ShapeMetadata applies kind-specific metadata mapping before publish.
// Short-form requests get the shorts marker appended to the description and
// added to the tag set; long-form requests pass through unchanged.
func ShapeMetadata(req PublishRequest) PublishRequest {
	if req.Kind != accounts.KindShorts {
		return req
	}

	if !containsFold(req.Description, ShortsMarker) {
		if req.Description == "" {
			req.Description = ShortsMarker
		} else {
			req.Description = strings.TrimRight(req.Description, "\n") + "\n\n" + ShortsMarker
		}
	}

	marker := strings.TrimPrefix(ShortsMarker, "#")
	for _, tag := range req.Tags {
		if strings.EqualFold(tag, marker) {
			return req
		}
	}
	req.Tags = append(append([]string{}, req.Tags...), marker)
	return req
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
