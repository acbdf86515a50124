// Package report renders comparison results for export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/sage-video/sage-backend/internal/compare"
)

// WriteCSV writes one row per scored segment pair: the time span on the
// global timeline and the measured distance.
func WriteCSV(w io.Writer, rep *compare.Report) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"start_sec", "end_sec", "distance"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, d := range rep.AllDistances {
		row := []string{
			strconv.FormatFloat(d.StartSec, 'f', 3, 64),
			strconv.FormatFloat(d.EndSec, 'f', 3, 64),
			strconv.FormatFloat(d.Distance, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
