// Package parser turns search result fragments into listing stubs.
package parser

import (
	"fmt"
	"strings"

	"github.com/SPll31/etsyparser/models"
)

// CompositeIndex labels a record by page and row, e.g. page 2 row 3 -> "2.03".
func CompositeIndex(page, row int) string {
	return fmt.Sprintf("%d.%02d", page, row)
}

// ValidateRecord ensures a record carries what the exporters need.
func ValidateRecord(r *models.ListingRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ListingID) == "" {
		return fmt.Errorf("record missing listing id at page %d position %d", r.Page, r.Position)
	}
	if r.Page <= 0 {
		return fmt.Errorf("record %s has invalid page %d", r.ListingID, r.Page)
	}
	if r.Index == "" {
		return fmt.Errorf("record %s missing index", r.ListingID)
	}
	switch r.ImageStatus {
	case models.ImageOK:
		if len(r.Image) == 0 {
			return fmt.Errorf("record %s marked ok without image bytes", r.ListingID)
		}
	case models.ImageMissing, models.ImageFailed:
	default:
		return fmt.Errorf("record %s has unknown image status %q", r.ListingID, r.ImageStatus)
	}
	return nil
}
