package export

import (
	"fmt"
	"io"

	"shareit/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Bookings"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout  = "2006-01-02 15:04"
)

var headers = []string{"ID", "Item", "Booker", "Start", "End", "Status"}

// statusFills colours the status cell of each row.
var statusFills = map[models.BookingStatus]string{
	models.StatusWaiting:  "#FFEB9C",
	models.StatusApproved: "#C6EFCE",
	models.StatusRejected: "#FFC7CE",
}

// WriteBookingsXLSX renders bookings as a single-sheet workbook, one row per
// booking in the given order. Times are written in UTC.
func WriteBookingsXLSX(w io.Writer, bookings []*models.Booking) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(SheetName, "A1", lastHeader, headerStyle)
	_ = f.SetColWidth(SheetName, "B", "C", 24)
	_ = f.SetColWidth(SheetName, "D", "E", 18)
	_ = f.SetColWidth(SheetName, "F", "F", 12)

	statusStyles := make(map[models.BookingStatus]int, len(statusFills))
	for status, color := range statusFills {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return fmt.Errorf("status style: %w", err)
		}
		statusStyles[status] = style
	}

	for i, b := range bookings {
		row := i + 2
		values := []interface{}{
			b.ID,
			b.Item.Name,
			b.Booker.Name,
			b.Start.UTC().Format(timeLayout),
			b.End.UTC().Format(timeLayout),
			b.Status.String(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		if style, ok := statusStyles[b.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(SheetName, cell, cell, style)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
