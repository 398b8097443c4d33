package ports

import "context"

// Locker serializa escrituras por clave (artículo, factura, cliente).
// Lock deduplica y ordena las claves, espera cada una con tiempo acotado y devuelve
// domain.ErrBusy si se agota; en ese caso libera lo que ya había tomado.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Claves de bloqueo por tipo de recurso.
func ItemLockKey(id string) string     { return "item:" + id }
func InvoiceLockKey(id string) string  { return "invoice:" + id }
func CustomerLockKey(id string) string { return "customer:" + id }
func SKULockKey(sku string) string     { return "sku:" + sku }
