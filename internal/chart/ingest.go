package chart

import (
	"encoding/json"
	"fmt"

	"github.com/shubham-shewale/stock-ratio/pkg/models"
)

// IngestJSON decodes one published row and merges it into the table
func (t *Table) IngestJSON(payload []byte) error {
	var row models.AnalyticalRow
	if err := json.Unmarshal(payload, &row); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	if row.Timestamp.IsZero() {
		return fmt.Errorf("decode row: missing timestamp")
	}
	t.Update(row)
	return nil
}
