package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/SPll31/etsyparser/models"
)

const (
	listingSelector = "a.listing-link"
	imageSelector   = "img.wt-image"

	// FirstPageTrailingSlots is the number of promoted entries appended to page one's fragment.
	FirstPageTrailingSlots = 6
)

// Extract parses a search results fragment into stubs for the given seller, in document order.
// Positions are taken before filtering so rows match the rendered grid. Seller anchors without
// a listing id are logged and skipped; the positions of the others are unaffected.
func Extract(rawHTML, seller string, page int) ([]models.ListingStub, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse results fragment: %w", err)
	}

	anchors := doc.Find(listingSelector)
	if page == 1 {
		n := anchors.Length()
		if n < FirstPageTrailingSlots {
			return nil, nil
		}
		anchors = anchors.Slice(0, n-FirstPageTrailingSlots)
	}

	var stubs []models.ListingStub
	anchors.Each(func(pos int, a *goquery.Selection) {
		if !strings.Contains(a.Text(), seller) {
			return
		}
		id := strings.TrimSpace(a.AttrOr("data-listing-id", ""))
		if id == "" {
			slog.Warn("seller listing without id skipped",
				slog.Int("page", page),
				slog.Int("position", pos),
				slog.String("href", a.AttrOr("href", "")),
			)
			return
		}
		stub := models.ListingStub{
			ListingID: id,
			Page:      page,
			Position:  pos,
		}
		if img := a.Find(imageSelector).First(); img.Length() > 0 {
			stub.HasImage = true
			stub.Image = imageDescriptor(img)
		}
		stubs = append(stubs, stub)
	})
	return stubs, nil
}

func imageDescriptor(img *goquery.Selection) models.ImageDescriptor {
	if srcset, ok := img.Attr("srcset"); ok && strings.TrimSpace(srcset) != "" {
		return ParseSrcset(srcset)
	}
	if src := strings.TrimSpace(img.AttrOr("src", "")); src != "" {
		return models.ImageDescriptor{Variants: []models.ImageVariant{{URL: src}}}
	}
	return models.ImageDescriptor{}
}
