// Package export renders audit trail rows for operator download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/basket/shopreply/internal/persistence"
)

var csvHeader = []string{"id", "session_id", "inquiry_id", "channel", "outcome", "reason", "sentiment", "created_at"}

// WriteOutcomesCSV streams outcome rows as CSV, header first.
func WriteOutcomesCSV(w io.Writer, recs []persistence.OutcomeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range recs {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.SessionID,
			rec.InquiryID,
			rec.Channel,
			rec.Outcome,
			rec.Reason,
			rec.Sentiment,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
