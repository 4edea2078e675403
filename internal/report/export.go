package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// Export file names, numbered in pipeline order.
const (
	RawHeadersFile        = "01_raw_headers.csv"
	RawLineItemsFile      = "02_raw_line_items.csv"
	RejectedHeadersFile   = "03_rejected_headers.csv"
	RejectedLineItemsFile = "04_rejected_line_items.csv"
	StagingHeadersFile    = "05_staging_headers.csv"
	StagingLineItemsFile  = "06_staging_line_items.csv"
	ValidationSummaryFile = "07_validation_summary.csv"
	HeaderReasonsFile     = "08_rejection_reasons_headers.csv"
	LineItemReasonsFile   = "09_rejection_reasons_line_items.csv"
)

var (
	headerColumns   = []string{"transaction_id", "customer_id", "store_id", "transaction_date", "total_amount"}
	lineItemColumns = []string{"line_item_id", "transaction_id", "product_id", "promotion_id", "quantity", "line_item_amount"}
)

// Export writes every table of t and the summary s into dir.
func Export(dir string, t *Tables, s *Summary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	files := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{RawHeadersFile, headerColumns, headerRows(t.Raw.Headers)},
		{RawLineItemsFile, lineItemColumns, lineItemRows(t.Raw.LineItems)},
		{
			RejectedHeadersFile,
			append(append([]string(nil), headerColumns...), "rejection_reason", "rejection_timestamp"),
			rejectedHeaderRows(t.Quarantine.Headers),
		},
		{
			RejectedLineItemsFile,
			append(append([]string(nil), lineItemColumns...), "rejection_reason", "rejection_timestamp"),
			rejectedLineItemRows(t.Quarantine.LineItems),
		},
		{
			StagingHeadersFile,
			append(append([]string(nil), headerColumns...), "processed", "created_timestamp"),
			stagedHeaderRows(t.Staging.Headers),
		},
		{
			StagingLineItemsFile,
			append(append([]string(nil), lineItemColumns...), "created_timestamp"),
			stagedLineItemRows(t.Staging.LineItems),
		},
		{
			ValidationSummaryFile,
			[]string{"record_type", "total", "valid", "rejected", "validation_rate"},
			summaryRows(s),
		},
		{HeaderReasonsFile, []string{"rejection_reason", "count"}, reasonRows(s.HeaderReasons)},
		{LineItemReasonsFile, []string{"rejection_reason", "count"}, reasonRows(s.LineItemReasons)},
	}

	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.header, f.rows); err != nil {
			return err
		}
	}

	logging.Info().
		Str("dir", dir).
		Int("files", len(files)).
		Msg("Exported tables")
	return nil
}

func writeFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func headerRow(h model.SalesHeader) []string {
	return []string{h.TransactionID, h.CustomerID, h.StoreID, h.TransactionDate, amount(h.TotalAmount)}
}

func lineItemRow(li model.SalesLineItem) []string {
	return []string{
		strconv.FormatInt(li.LineItemID, 10), li.TransactionID, li.ProductID, li.PromotionID,
		strconv.FormatInt(li.Quantity, 10), amount(li.LineItemAmount),
	}
}

func headerRows(headers []model.SalesHeader) [][]string {
	rows := make([][]string, 0, len(headers))
	for _, h := range headers {
		rows = append(rows, headerRow(h))
	}
	return rows
}

func lineItemRows(items []model.SalesLineItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, li := range items {
		rows = append(rows, lineItemRow(li))
	}
	return rows
}

func rejectedHeaderRows(rej []model.HeaderRejection) [][]string {
	rows := make([][]string, 0, len(rej))
	for _, r := range rej {
		rows = append(rows, append(headerRow(r.SalesHeader), r.Reason, ts(r.RejectedAt)))
	}
	return rows
}

func rejectedLineItemRows(rej []model.LineItemRejection) [][]string {
	rows := make([][]string, 0, len(rej))
	for _, r := range rej {
		rows = append(rows, append(lineItemRow(r.SalesLineItem), r.Reason, ts(r.RejectedAt)))
	}
	return rows
}

func stagedHeaderRows(staged []model.StagedHeader) [][]string {
	rows := make([][]string, 0, len(staged))
	for _, h := range staged {
		rows = append(rows, append(headerRow(h.SalesHeader), strconv.FormatBool(h.Processed), ts(h.CreatedAt)))
	}
	return rows
}

func stagedLineItemRows(staged []model.StagedLineItem) [][]string {
	rows := make([][]string, 0, len(staged))
	for _, li := range staged {
		rows = append(rows, append(lineItemRow(li.SalesLineItem), ts(li.CreatedAt)))
	}
	return rows
}

func summaryRows(s *Summary) [][]string {
	rows := make([][]string, 0, 2)
	for _, c := range []Counts{s.Headers, s.LineItems} {
		rows = append(rows, []string{
			c.RecordType,
			strconv.Itoa(c.Total),
			strconv.Itoa(c.Valid),
			strconv.Itoa(c.Rejected),
			strconv.FormatFloat(c.ValidationRate(), 'f', 2, 64),
		})
	}
	return rows
}

func reasonRows(reasons []ReasonCount) [][]string {
	rows := make([][]string, 0, len(reasons))
	for _, r := range reasons {
		rows = append(rows, []string{r.Reason, strconv.Itoa(r.Count)})
	}
	return rows
}

func amount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
