package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/SPll31/etsyparser/models"
)

const (
	pixelsToPoints = 0.75
	// pixelsToWidth converts a pixel size to Excel column width units.
	pixelsToWidth = 0.075 * 2
)

var pictureExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// XLSXWriter lays records out as a workbook: a bold title row per keyword, one row per
// listing with its thumbnail in A, the index in B and the listing id in C, then a blank row.
// The workbook is written to disk on Close.
type XLSXWriter struct {
	path       string
	file       *excelize.File
	sheet      string
	thumbnail  int
	titleStyle int

	row    int
	saved  bool
	closed bool
	mu     sync.Mutex
}

// NewXLSXWriter prepares an in-memory workbook that is saved to filename on Close.
// The workbook can only be saved under an .xlsx name, so anything else is rejected up front.
func NewXLSXWriter(filename string, thumbnail int) (*XLSXWriter, error) {
	if ext := filepath.Ext(filename); ext != ".xlsx" {
		return nil, fmt.Errorf("xlsx output %q must end in .xlsx, got %q", filename, ext)
	}
	if thumbnail <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive")
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create title style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", "A", float64(thumbnail)*pixelsToWidth); err != nil {
		f.Close()
		return nil, fmt.Errorf("set image column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "C", 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("set column width: %w", err)
	}

	return &XLSXWriter{
		path:       filename,
		file:       f,
		sheet:      sheet,
		thumbnail:  thumbnail,
		titleStyle: style,
	}, nil
}

// WriteKeyword appends one keyword section.
func (xw *XLSXWriter) WriteKeyword(keyword string, records []models.ListingRecord) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return ErrPipelineClosed
	}

	xw.row++
	title := cell("A", xw.row)
	if err := xw.file.SetCellValue(xw.sheet, title, keyword); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := xw.file.MergeCell(xw.sheet, title, cell("C", xw.row)); err != nil {
		return fmt.Errorf("merge title: %w", err)
	}
	if err := xw.file.SetCellStyle(xw.sheet, title, title, xw.titleStyle); err != nil {
		return fmt.Errorf("style title: %w", err)
	}

	for _, rec := range records {
		xw.row++
		if err := xw.file.SetCellValue(xw.sheet, cell("B", xw.row), rec.Index); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
		if err := xw.file.SetCellValue(xw.sheet, cell("C", xw.row), rec.ListingID); err != nil {
			return fmt.Errorf("write listing id: %w", err)
		}
		if err := xw.writePicture(rec); err != nil {
			return err
		}
	}

	// blank separator
	xw.row++
	return nil
}

func (xw *XLSXWriter) writePicture(rec models.ListingRecord) error {
	anchor := cell("A", xw.row)
	if rec.ImageStatus != models.ImageOK || len(rec.Image) == 0 {
		return xw.file.SetCellValue(xw.sheet, anchor, rec.ImageStatus)
	}

	ext, ok := pictureExtensions[http.DetectContentType(rec.Image)]
	if !ok {
		slog.Debug("image format not embeddable", slog.String("listing_id", rec.ListingID))
		return xw.file.SetCellValue(xw.sheet, anchor, "unsupported")
	}
	conf, _, err := image.DecodeConfig(bytes.NewReader(rec.Image))
	if err != nil || conf.Width == 0 || conf.Height == 0 {
		slog.Debug("image header unreadable", slog.String("listing_id", rec.ListingID), slog.Any("error", err))
		return xw.file.SetCellValue(xw.sheet, anchor, "unsupported")
	}

	scale := thumbnailScale(conf.Width, conf.Height, xw.thumbnail)
	if err := xw.file.AddPictureFromBytes(xw.sheet, anchor, &excelize.Picture{
		Extension: ext,
		File:      rec.Image,
		Format: &excelize.GraphicOptions{
			AltText:         rec.ListingID,
			LockAspectRatio: true,
			ScaleX:          scale,
			ScaleY:          scale,
		},
	}); err != nil {
		return fmt.Errorf("embed image for %s: %w", rec.ListingID, err)
	}
	return xw.file.SetRowHeight(xw.sheet, xw.row, float64(conf.Height)*scale*pixelsToPoints)
}

// thumbnailScale fits the longer side into size without enlarging.
func thumbnailScale(width, height, size int) float64 {
	longest := max(width, height)
	if longest <= size {
		return 1
	}
	return float64(size) / float64(longest)
}

// Close saves the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return nil
	}
	xw.closed = true

	saveErr := xw.file.SaveAs(xw.path)
	if saveErr == nil {
		xw.saved = true
	}
	if err := xw.file.Close(); err != nil && saveErr == nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if saveErr != nil {
		return fmt.Errorf("save workbook: %w", saveErr)
	}
	return nil
}

// Validate ensures the workbook was saved and is not empty.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	saved := xw.saved
	xw.mu.Unlock()

	if !saved {
		return fmt.Errorf("xlsx workbook not saved")
	}
	info, err := os.Stat(xw.path)
	if err != nil {
		return fmt.Errorf("stat xlsx file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("xlsx file is empty")
	}
	return nil
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
