package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceAliases maps config names to CDP resource types.
var resourceAliases = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// blockSet normalises config names into a set of CDP resource types.
func blockSet(types []string) map[proto.NetworkResourceType]bool {
	set := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if rt, ok := resourceAliases[t]; ok {
			set[rt] = true
			continue
		}
		for _, known := range []proto.NetworkResourceType{
			proto.NetworkResourceTypeImage, proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeMedia, proto.NetworkResourceTypeStylesheet,
			proto.NetworkResourceTypeScript, proto.NetworkResourceTypeXHR,
			proto.NetworkResourceTypeFetch, proto.NetworkResourceTypeWebSocket,
		} {
			if strings.EqualFold(string(known), t) {
				set[known] = true
			}
		}
	}
	return set
}

// applyResourceBlocking fails requests for the listed resource types.
func applyResourceBlocking(page *rod.Page, types []string) {
	set := blockSet(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if set[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}
