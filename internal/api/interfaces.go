package api

import "github.com/bookvault/bookvault/internal/domain"

// Handler dependencies are the canonical domain interfaces.
type (
	BookService      = domain.BookService
	ReferenceService = domain.ReferenceService
	BatchService     = domain.BatchService
	AuditService     = domain.AuditService
)
