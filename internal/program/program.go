package program

import "github.com/stealthpool/client-go/internal/ledger"

// Program carries the addresses the stealth pool program interacts with.
type Program struct {
	// ID is the stealth pool program.
	ID ledger.Address
	// DelegationProgram hands accounts to the rollup.
	DelegationProgram ledger.Address
	// ServiceAuthority receives the rent of withdrawn output escrows.
	ServiceAuthority ledger.Address
}

// New returns a Program for the given addresses.
func New(id, delegation, serviceAuthority ledger.Address) *Program {
	return &Program{ID: id, DelegationProgram: delegation, ServiceAuthority: serviceAuthority}
}
