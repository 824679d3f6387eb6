package handler

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"paysync-backend/internal/domains/payment/model"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheet     = "Transactions"
	exportTime      = "2006-01-02 15:04:05"
)

var exportHeaders = []string{
	"Txn ID",
	"Parent",
	"Type",
	"Status",
	"Currency",
	"Gross",
	"Fee",
	"Settle Amount",
	"Settle Currency",
	"Exchange Rate",
	"Created At",
	"Last Modified",
	"External",
	"Source",
	"Note",
}

// buildTransactionsWorkbook writes one row per node in graph order.
func buildTransactionsWorkbook(list *model.TransactionListResponse) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, err
		}
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
		_ = f.SetCellStyle(exportSheet, "A1", last, headerStyle)
	}

	for i, t := range list.Transactions {
		row := i + 2
		values := []interface{}{
			t.TxnID,
			t.Parent(),
			string(t.TxnType),
			t.PaymentStatus,
			t.Currency,
			t.GrossAmount.InexactFloat64(),
			t.Fee.InexactFloat64(),
			t.SettleAmount.InexactFloat64(),
			t.SettleCurrency,
			t.ExchangeRate.String(),
			t.CreatedAt.Format(exportTime),
			t.LastModified.Format(exportTime),
			t.ExternallyAdded,
			memoString(t.Memo, model.MemoSource),
			memoString(t.Memo, model.MemoNote),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}
	return f, nil
}

func memoString(memo model.Memo, key string) string {
	v, ok := memo[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
