package billing

import (
	"time"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// Máquina de estados de la factura:
//
//	DRAFT --issue--> ISSUED --pagos--> PAID (amount_paid == total_amount)
//	ISSUED --vencimiento--> OVERDUE (clasificación por tiempo, no bloquea pagos)
//	cualquier estado no anulado --void--> VOIDED (terminal)
//	ISSUED | OVERDUE | PAID --return--> mismo estado (solo mueve stock)

// CheckIssue valida que la factura pueda emitirse.
func CheckIssue(inv *entity.Invoice) error {
	if inv.Status != entity.InvoiceStatusDraft {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

// CheckPayment valida que la factura acepte pagos. Una factura PAID sí pasa esta
// validación: el pago se rechaza después como sobrepago.
func CheckPayment(inv *entity.Invoice) error {
	switch inv.Status {
	case entity.InvoiceStatusIssued, entity.InvoiceStatusOverdue, entity.InvoiceStatusPaid:
		return nil
	}
	return domain.ErrInvalidStateTransition
}

// CheckVoid valida que la factura pueda anularse.
func CheckVoid(inv *entity.Invoice) error {
	if inv.Status == entity.InvoiceStatusVoided {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

// CheckReturn valida que la factura admita devoluciones: solo las que ya descontaron stock.
func CheckReturn(inv *entity.Invoice) error {
	switch inv.Status {
	case entity.InvoiceStatusIssued, entity.InvoiceStatusOverdue, entity.InvoiceStatusPaid:
		return nil
	}
	return domain.ErrInvalidStateTransition
}

// StatusAfterPayment estado resultante tras actualizar amount_paid.
func StatusAfterPayment(inv *entity.Invoice) string {
	if inv.AmountPaid.Equal(inv.TotalAmount) {
		return entity.InvoiceStatusPaid
	}
	return inv.Status
}

// IsOverdue true si la factura emitida superó su fecha de vencimiento.
func IsOverdue(inv *entity.Invoice, now time.Time) bool {
	return inv.Status == entity.InvoiceStatusIssued && inv.DueDate != nil && inv.DueDate.Before(now)
}

// EffectiveStatus estado a mostrar en lecturas: aplica la clasificación de vencida
// aunque el barrido periódico todavía no la haya persistido.
func EffectiveStatus(inv *entity.Invoice, now time.Time) string {
	if IsOverdue(inv, now) {
		return entity.InvoiceStatusOverdue
	}
	return inv.Status
}
