package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound               = errors.New("recurso no encontrado")
	ErrInvalidInput           = errors.New("entrada inválida")
	ErrDuplicate              = errors.New("recurso duplicado")
	ErrUnauthorized           = errors.New("no autorizado")
	ErrForbidden              = errors.New("acceso denegado")
	ErrInsufficientStock      = errors.New("stock insuficiente")
	ErrInvalidAmount          = errors.New("monto o cantidad inválida")
	ErrInvalidCost            = errors.New("costo unitario inválido")
	ErrOverpayment            = errors.New("el pago excede el saldo pendiente")
	ErrInvalidStateTransition = errors.New("transición de estado no permitida")
	ErrIdempotencyConflict    = errors.New("la clave de idempotencia ya se usó con otra operación")

	// ErrBusy se devuelve cuando no se obtiene el bloqueo a tiempo; el caller puede reintentar.
	ErrBusy = errors.New("recurso ocupado, reintente")
)
