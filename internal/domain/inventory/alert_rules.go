package inventory

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ExpirySeverity severidad de una alerta de vencimiento según los días restantes.
func ExpirySeverity(daysLeft int) entity.AlertSeverity {
	switch {
	case daysLeft < 7:
		return entity.SeverityCritical
	case daysLeft < 30:
		return entity.SeverityHigh
	case daysLeft < 90:
		return entity.SeverityMedium
	default:
		return entity.SeverityLow
	}
}

// DaysUntil días calendario entre today y expiry (negativo si ya venció).
func DaysUntil(expiry, today time.Time) int {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(t).Hours() / 24)
}
