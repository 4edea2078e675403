package pipeline

import (
	"time"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// Route computes the staging layer from the raw layer minus quarantine.
//
// A header is staged when its transaction id is not quarantined. A line item
// is staged when its own id is not quarantined and its transaction was staged
// in this same call, so staging never holds an orphaned line item. Output is
// ordered by natural key, making the result a pure function of its inputs.
func Route(raw *model.Raw, q *model.Quarantine, now time.Time) *model.Staging {
	rejectedHeaders := q.HeaderKeys()
	rejectedItems := q.LineItemKeys()

	headers := make([]model.SalesHeader, len(raw.Headers))
	copy(headers, raw.Headers)
	model.SortHeaders(headers)

	items := make([]model.SalesLineItem, len(raw.LineItems))
	copy(items, raw.LineItems)
	model.SortLineItems(items)

	st := &model.Staging{}
	staged := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, ok := rejectedHeaders[h.TransactionID]; ok {
			continue
		}
		staged[h.TransactionID] = struct{}{}
		st.Headers = append(st.Headers, model.StagedHeader{
			SalesHeader: h,
			Processed:   false,
			CreatedAt:   now,
		})
	}

	for _, li := range items {
		if _, ok := rejectedItems[li.LineItemID]; ok {
			continue
		}
		if _, ok := staged[li.TransactionID]; !ok {
			continue
		}
		st.LineItems = append(st.LineItems, model.StagedLineItem{
			SalesLineItem: li,
			CreatedAt:     now,
		})
	}

	return st
}
