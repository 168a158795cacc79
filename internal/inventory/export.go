package inventory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var exportHeader = []string{"id", "name", "stock", "min_stock", "low", "code", "location", "order_link", "notes"}

// ExportCSV writes every article as one CSV row, ordered by id.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	articles, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, a := range articles {
		row := []string{
			strconv.FormatInt(a.ID, 10),
			a.Name,
			strconv.Itoa(a.Stock),
			strconv.Itoa(a.MinStock),
			strconv.FormatBool(a.IsLow()),
			a.Code,
			a.Location,
			a.OrderLink,
			a.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write article %d: %w", a.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
