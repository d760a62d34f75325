// Package normalizer turns raw exchange export rows into a canonical,
// chronologically ordered sequence of Purchase records.
//
// Exchange CSV exports are messy: mixed date formats, thousands separators,
// rows for trade types we don't account for. Invalid rows are dropped and
// counted, never fatal to the batch: an import that loses rows silently
// would corrupt the cost basis without anyone noticing.
package normalizer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

// ErrMissingHeader is returned when the CSV has no usable header row.
var ErrMissingHeader = errors.New("normalizer: missing or unreadable header row")

// Field names matched against the header row, lower-cased. These follow the
// Shakepay export schema; alternates cover other common exchange exports.
var (
	dateFields     = []string{"date", "transaction date", "timestamp"}
	typeFields     = []string{"type", "transaction type"}
	assetFields    = []string{"asset credited", "credit currency", "asset"}
	quantityFields = []string{"amount credited", "credit amount", "quantity"}
	costFields     = []string{"book cost", "total cost", "amount debited", "cost"}
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
	"01/02/2006",
}

// Filter selects which rows become purchases.
type Filter struct {
	Asset  string // credited asset symbol, e.g. "BTC"
	TxType string // transaction type, e.g. "Buy"
}

// Result is the outcome of normalizing one batch. Purchases are sorted by
// timestamp ascending. Dropped counts rows excluded for any reason other
// than the asset/type filter; filter misses are expected, not defects.
// An empty Purchases slice is a valid outcome, not an error.
type Result struct {
	Purchases []model.Purchase
	Dropped   int
	Total     int
}

// Normalize reads CSV rows from r and returns the valid purchases matching
// the filter. A row is dropped (and counted) when a required field is
// missing, the date does not parse under any known layout, the quantity is
// not a positive decimal, or the cost is negative or unparseable.
func Normalize(r io.Reader, filter Filter, sourceFile string) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMissingHeader, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	dateIdx, ok := fieldIndex(idx, dateFields)
	if !ok {
		return Result{}, fmt.Errorf("%w: no date column", ErrMissingHeader)
	}
	typeIdx, _ := fieldIndex(idx, typeFields)
	assetIdx, _ := fieldIndex(idx, assetFields)
	qtyIdx, qtyOK := fieldIndex(idx, quantityFields)
	costIdx, costOK := fieldIndex(idx, costFields)
	if !qtyOK || !costOK {
		return Result{}, fmt.Errorf("%w: no quantity/cost columns", ErrMissingHeader)
	}

	asset := strings.ToUpper(strings.TrimSpace(filter.Asset))
	txType := strings.ToLower(strings.TrimSpace(filter.TxType))

	var res Result
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed row (bad quoting, etc). Drop it, keep the batch.
			res.Total++
			res.Dropped++
			continue
		}
		res.Total++

		if typeIdx >= 0 && !matchField(row, typeIdx, txType, strings.ToLower) {
			continue
		}
		if assetIdx >= 0 && !matchField(row, assetIdx, asset, strings.ToUpper) {
			continue
		}

		p, ok := parseRow(row, dateIdx, qtyIdx, costIdx, sourceFile)
		if !ok {
			res.Dropped++
			continue
		}
		res.Purchases = append(res.Purchases, p)
	}

	sort.SliceStable(res.Purchases, func(i, j int) bool {
		return res.Purchases[i].Timestamp.Before(res.Purchases[j].Timestamp)
	})
	return res, nil
}

func parseRow(row []string, dateIdx, qtyIdx, costIdx int, sourceFile string) (model.Purchase, bool) {
	ts, err := parseTimestamp(cell(row, dateIdx))
	if err != nil {
		return model.Purchase{}, false
	}

	qty, err := parseDecimal(cell(row, qtyIdx))
	if err != nil || !qty.IsPositive() {
		return model.Purchase{}, false
	}

	cost, err := parseDecimal(cell(row, costIdx))
	if err != nil || cost.IsNegative() {
		return model.Purchase{}, false
	}

	return model.Purchase{
		ID:            uuid.New().String(),
		Timestamp:     ts,
		QuantityBTC:   qty,
		CostFiat:      cost,
		UnitPriceFiat: cost.Div(qty),
		SourceFile:    sourceFile,
	}, true
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return decimal.Decimal{}, errors.New("empty value")
	}
	return decimal.NewFromString(s)
}

func fieldIndex(idx map[string]int, names []string) (int, bool) {
	for _, n := range names {
		if i, ok := idx[n]; ok {
			return i, true
		}
	}
	return -1, false
}

func matchField(row []string, i int, want string, norm func(string) string) bool {
	if want == "" {
		return true
	}
	return norm(strings.TrimSpace(cell(row, i))) == want
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
