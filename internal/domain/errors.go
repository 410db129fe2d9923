package domain

import "errors"

// Errores de dominio (sin dependencias externas).
// Los casos de uso los envuelven con fmt.Errorf("...: %w", err); comparar siempre con errors.Is.
var (
	ErrNotFound               = errors.New("recurso no encontrado")
	ErrValidation             = errors.New("movimiento inválido")
	ErrReferenceNotFound      = errors.New("referencia inexistente o archivada")
	ErrInsufficientStock      = errors.New("stock insuficiente")
	ErrInsufficientLotStock   = errors.New("stock insuficiente en lotes elegibles")
	ErrDuplicateSerial        = errors.New("número de serie ya activo")
	ErrInvalidSerialState     = errors.New("estado de serial inválido para la operación")
	ErrConcurrencyConflict    = errors.New("conflicto de concurrencia, reintente")
	ErrAlreadyReversed        = errors.New("el movimiento ya fue reversado")
	ErrInvalidAlertTransition = errors.New("transición de alerta no permitida")
)
