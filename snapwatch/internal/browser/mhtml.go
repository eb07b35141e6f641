package browser

import (
	"regexp"
	"strings"
)

var boundaryParam = regexp.MustCompile(`boundary="([^"]+)"`)

// Rebound replaces the multipart boundary of an MHTML document with
// boundary, so the archive carries the marker announced for its event.
// Documents without a boundary parameter are returned unchanged.
func Rebound(mhtml, boundary string) string {
	m := boundaryParam.FindStringSubmatch(mhtml)
	if m == nil || m[1] == boundary {
		return mhtml
	}
	return strings.ReplaceAll(mhtml, m[1], boundary)
}
