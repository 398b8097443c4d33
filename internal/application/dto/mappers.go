package dto

import "github.com/jhoicas/ledger-api/internal/domain/entity"

// ToItemResponse mapea Item a su respuesta.
func ToItemResponse(i *entity.Item) ItemResponse {
	return ItemResponse{
		ID:           i.ID,
		SKU:          i.SKU,
		Name:         i.Name,
		CurrentQty:   i.CurrentQty,
		CurrentWAC:   i.CurrentWAC,
		StockValue:   i.StockValue(),
		SellingPrice: i.SellingPrice,
		CostPrice:    i.CostPrice,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// ToMovementResponse mapea StockMovement a su respuesta.
func ToMovementResponse(m *entity.StockMovement) MovementResponse {
	out := MovementResponse{
		ID:             m.ID,
		ItemID:         m.ItemID,
		Seq:            m.Seq,
		QuantityChange: m.QuantityChange,
		Reason:         m.Reason,
		UnitCost:       m.UnitCost,
		RunningQty:     m.RunningQty,
		WACAfter:       m.WACAfter,
		ReferenceType:  m.ReferenceType,
		ReferenceID:    m.ReferenceID,
		Notes:          m.Notes,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
	}
	for _, d := range m.Depletions {
		out.Depletions = append(out.Depletions, LayerDepletionResponse{LayerID: d.LayerID, Qty: d.Qty, UnitCost: d.UnitCost})
	}
	return out
}

// ToCostLayerResponse mapea CostLayer a su respuesta.
func ToCostLayerResponse(l *entity.CostLayer) CostLayerResponse {
	return CostLayerResponse{
		ID:               l.ID,
		Seq:              l.Seq,
		UnitCost:         l.UnitCost,
		QtyOnHand:        l.QtyOnHand(),
		QtyReceivedTotal: l.QtyReceivedTotal,
		QtySold:          l.QtySold,
		StockValue:       l.StockValue(),
		CreatedAt:        l.CreatedAt,
	}
}

// ToCustomerResponse mapea Customer a su respuesta.
func ToCustomerResponse(c *entity.Customer) CustomerResponse {
	return CustomerResponse{ID: c.ID, Name: c.Name, TaxID: c.TaxID, Email: c.Email, CreatedAt: c.CreatedAt}
}

// ToInvoiceResponse mapea Invoice a su respuesta con el estado indicado.
func ToInvoiceResponse(inv *entity.Invoice, status string) InvoiceResponse {
	wac, fifo := inv.CostOfGoods()
	out := InvoiceResponse{
		ID:          inv.ID,
		Number:      inv.Number,
		CustomerID:  inv.CustomerID,
		Status:      status,
		Subtotal:    inv.Subtotal,
		Discount:    inv.Discount,
		TotalAmount: inv.TotalAmount,
		AmountPaid:  inv.AmountPaid,
		Remaining:   inv.Remaining(),
		CostWAC:     wac,
		CostFIFO:    fifo,
		DueDate:     inv.DueDate,
		IssuedAt:    inv.IssuedAt,
		VoidedAt:    inv.VoidedAt,
		VoidReason:  inv.VoidReason,
		Lines:       make([]InvoiceLineResponse, 0, len(inv.Lines)),
		CreatedAt:   inv.CreatedAt,
	}
	for _, l := range inv.Lines {
		out.Lines = append(out.Lines, InvoiceLineResponse{
			ItemID:      l.ItemID,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
			UnitCostWAC: l.UnitCostWAC,
			CostWAC:     l.CostWAC,
			CostFIFO:    l.CostFIFO,
		})
	}
	return out
}

// ToPaymentResponse mapea Payment a su respuesta.
func ToPaymentResponse(p *entity.Payment, replayed bool) PaymentResponse {
	out := PaymentResponse{
		PaymentID:      p.ID,
		IdempotencyKey: p.IdempotencyKey,
		CustomerID:     p.CustomerID,
		InvoiceID:      p.InvoiceID,
		Amount:         p.Amount,
		Method:         p.Method,
		Allocations:    make([]AllocationResponse, 0, len(p.Allocations)),
		Allocated:      p.Allocated(),
		Unapplied:      p.Unapplied,
		Replayed:       replayed,
		CreatedAt:      p.CreatedAt,
	}
	for _, a := range p.Allocations {
		out.Allocations = append(out.Allocations, AllocationResponse{
			InvoiceID:       a.InvoiceID,
			Amount:          a.Amount,
			AmountPaidAfter: a.AmountPaidAfter,
			StatusAfter:     a.StatusAfter,
		})
	}
	return out
}

// ToCustomerSummaryResponse mapea el saldo derivado a su respuesta.
func ToCustomerSummaryResponse(b entity.CustomerBalance) CustomerSummaryResponse {
	return CustomerSummaryResponse{
		CustomerID:            b.CustomerID,
		Outstanding:           b.Outstanding,
		CreditAvailable:       b.CreditAvailable,
		TotalInvoiced:         b.TotalInvoiced,
		TotalPaidOnInvoices:   b.TotalPaidOnInvoices,
		TotalManualPayments:   b.TotalManualPayments,
		InvoiceRemainingTotal: b.InvoiceRemainingTotal,
		UnappliedCredit:       b.UnappliedCredit,
		InvoiceCount:          b.InvoiceCount,
		OpenInvoiceCount:      b.OpenInvoiceCount,
	}
}
