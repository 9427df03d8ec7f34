package parser

import (
	"strings"

	"github.com/SPll31/etsyparser/models"
)

// ParseSrcset turns "a.jpg 300w, b.jpg 600w" into ordered width/URL pairs.
// Width descriptors lose their "w"; other descriptors are kept as written.
// A repeated descriptor keeps its first URL.
func ParseSrcset(srcset string) models.ImageDescriptor {
	var desc models.ImageDescriptor
	seen := make(map[string]struct{})
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		width := ""
		if len(fields) > 1 {
			width = strings.TrimSuffix(fields[1], "w")
		}
		if _, dup := seen[width]; dup {
			continue
		}
		seen[width] = struct{}{}
		desc.Variants = append(desc.Variants, models.ImageVariant{Width: width, URL: fields[0]})
	}
	return desc
}
