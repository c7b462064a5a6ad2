package http

import (
	"context"
	"io"

	"tradelens/internal/services"
	"tradelens/pkg/contracts/domain"
)

// LedgerServiceInterface defines the ledger operations the handlers use
type LedgerServiceInterface interface {
	Analyze(ctx context.Context, uploads []services.Upload, groups []domain.GroupBy) (*services.Analysis, error)
	Export(ctx context.Context, uploads []services.Upload, w io.Writer) error
}
