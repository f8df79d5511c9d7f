package handler

import (
	"fmt"

	"dovepay/internal/models"
	"dovepay/internal/service"

	"github.com/xuri/excelize/v2"
)

const paymentsSheet = "Payments"

var paymentsHeader = []string{"Reference", "Checkout Request ID", "Phone", "Amount", "Status", "Receipt", "Failure Reason", "Created At", "Updated At"}

func buildPaymentsWorkbook(txns []models.Transaction) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", paymentsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(paymentsSheet, "A1", &paymentsHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, t := range txns {
		amount, _ := t.Amount.Float64()
		row := []interface{}{
			t.Reference,
			t.CorrelationID,
			t.Phone,
			amount,
			t.Status,
			deref(t.Receipt),
			deref(t.FailureReason),
			t.CreatedAt.Format("2006-01-02 15:04:05"),
			t.UpdatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(paymentsSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	total, _ := service.CompletedTotal(txns).Float64()
	totalRow := len(txns) + 2
	if err := f.SetCellValue(paymentsSheet, fmt.Sprintf("C%d", totalRow), "Total completed"); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetCellValue(paymentsSheet, fmt.Sprintf("D%d", totalRow), total); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
