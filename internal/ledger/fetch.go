package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/stealthpool/client-go/internal/apierrors"
)

// Source pairs a client with the domain it serves.
type Source struct {
	Domain Domain
	Client Client
}

// FetchFirst reads address from each source in order and returns the first
// hit with its domain. It fails with apierrors.ErrAccountNotFound only when
// every source reported the account missing; otherwise the first lookup error
// is returned.
func FetchFirst(ctx context.Context, address Address, sources ...Source) (*Account, Domain, error) {
	var firstErr error
	for _, src := range sources {
		acc, err := src.Client.GetAccountInfo(ctx, address)
		if err == nil {
			return acc, src.Domain, nil
		}
		if !errors.Is(err, apierrors.ErrAccountNotFound) && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", src.Domain, err)
		}
	}
	if firstErr != nil {
		return nil, 0, firstErr
	}
	return nil, 0, fmt.Errorf("%w: %s", apierrors.ErrAccountNotFound, address)
}
