package program

import (
	"errors"
	"testing"

	"github.com/stealthpool/client-go/internal/ledger"
)

func testProgram() *Program {
	var id, delegation, authority ledger.Address
	for i := range id {
		id[i] = byte(i + 1)
		delegation[i] = byte(0x80 + i)
		authority[i] = byte(0x40 + i)
	}
	return New(id, delegation, authority)
}

func TestFindProgramAddress_OffCurveAndStable(t *testing.T) {
	p := testProgram()

	for id := uint64(0); id < 32; id++ {
		a1, err := p.DepositAddress(id)
		if err != nil {
			t.Fatalf("DepositAddress(%d) error = %v", id, err)
		}
		a2, _ := p.DepositAddress(id)
		if a1 != a2 {
			t.Errorf("DepositAddress(%d) not deterministic", id)
		}
		if isOnCurve(a1[:]) {
			t.Errorf("DepositAddress(%d) is on curve", id)
		}
	}
}

func TestFindProgramAddress_MatchesCreate(t *testing.T) {
	p := testProgram()
	seeds := [][]byte{[]byte(SeedPool)}

	addr, bump, err := FindProgramAddress(seeds, p.ID)
	if err != nil {
		t.Fatalf("FindProgramAddress() error = %v", err)
	}
	again, err := CreateProgramAddress([][]byte{[]byte(SeedPool), {bump}}, p.ID)
	if err != nil {
		t.Fatalf("CreateProgramAddress() error = %v", err)
	}
	if addr != again {
		t.Errorf("CreateProgramAddress with bump %d = %s, want %s", bump, again, addr)
	}
}

func TestProgramAddresses_Distinct(t *testing.T) {
	p := testProgram()
	pool, _ := p.PoolAddress()
	dep, _ := p.DepositAddress(1)
	in, _ := p.InputEscrowAddress(1)
	dep2, _ := p.DepositAddress(2)
	var stealth [32]byte
	stealth[0] = 1
	out, _ := p.OutputEscrowAddress(stealth)

	seen := map[ledger.Address]string{}
	for name, a := range map[string]ledger.Address{"pool": pool, "deposit1": dep, "input1": in, "deposit2": dep2, "output": out} {
		if prev, ok := seen[a]; ok {
			t.Errorf("%s collides with %s", name, prev)
		}
		seen[a] = name
	}
}

func TestCreateProgramAddress_InvalidSeeds(t *testing.T) {
	p := testProgram()
	if _, err := CreateProgramAddress([][]byte{make([]byte, 33)}, p.ID); !errors.Is(err, ErrInvalidSeeds) {
		t.Errorf("long seed error = %v, want ErrInvalidSeeds", err)
	}
	if _, err := CreateProgramAddress(make([][]byte, 17), p.ID); !errors.Is(err, ErrInvalidSeeds) {
		t.Errorf("too many seeds error = %v, want ErrInvalidSeeds", err)
	}
}
