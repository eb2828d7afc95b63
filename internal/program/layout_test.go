package program

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"
)

func TestAccountDiscriminators(t *testing.T) {
	tests := []struct {
		name string
		got  Discriminator
		want string
	}{
		{"DepositRecord", DepositRecordDiscriminator, "53e80a1ffb31bda7"},
		{"InputEscrow", InputEscrowDiscriminator, "e7859db66fc9e8ed"},
		{"OutputEscrow", OutputEscrowDiscriminator, "dbff994442cde924"},
		{"Pool", PoolDiscriminator, "f19a6d0411b16dbc"},
	}
	for _, tt := range tests {
		if got := hex.EncodeToString(tt.got[:]); got != tt.want {
			t.Errorf("%s discriminator = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestInstructionDiscriminators(t *testing.T) {
	tests := []struct {
		name string
		got  Discriminator
		want string
	}{
		{"create_deposit", CreateDepositDiscriminator, "9d1e0b8110a6734b"},
		{"upload_ciphertext_chunk", UploadCiphertextChunkDiscriminator, "7aa1f4d564c583c5"},
		{"complete_deposit", CompleteDepositDiscriminator, "a98c23d6ec85bf20"},
		{"claim_escrow", ClaimEscrowDiscriminator, "c850b69f3d4b09cd"},
		{"withdraw", WithdrawDiscriminator, "b712469c946da122"},
		{"abandon_deposit", AbandonDepositDiscriminator, "a8d7561e097fb415"},
	}
	for _, tt := range tests {
		if got := hex.EncodeToString(tt.got[:]); got != tt.want {
			t.Errorf("%s discriminator = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestDepositRecord_Offsets(t *testing.T) {
	r := &DepositRecord{
		SequenceID: 0x0102030405060708,
		Amount:     1_500_000_000,
		ViewTag:    0xee,
		Uploaded:   true,
		Claimed:    true,
		Bump:       254,
	}
	copy(r.Depositor[:], filled(32, 0x11))
	copy(r.StealthPubkey[:], filled(32, 0x22))
	copy(r.EphemeralPubkey[:], filled(32, 0x33))
	copy(r.EncryptedDestination[:], filled(48, 0x44))
	copy(r.Ciphertext[:], filled(1120, 0x55))

	data := r.Encode()
	if len(data) != 1293 {
		t.Fatalf("encoded size = %d, want 1293", len(data))
	}

	if got := binary.LittleEndian.Uint64(data[8:16]); got != r.SequenceID {
		t.Errorf("sequence id at 8 = %#x", got)
	}
	if !bytes.Equal(data[16:48], filled(32, 0x11)) {
		t.Error("depositor not at 16..48")
	}
	if got := binary.LittleEndian.Uint64(data[48:56]); got != r.Amount {
		t.Errorf("amount at 48 = %d", got)
	}
	if !bytes.Equal(data[56:88], filled(32, 0x22)) {
		t.Error("stealth pubkey not at 56..88")
	}
	if !bytes.Equal(data[88:120], filled(32, 0x33)) {
		t.Error("ephemeral pubkey not at 88..120")
	}
	if data[120] != 0xee {
		t.Errorf("view tag at 120 = %#x", data[120])
	}
	if !bytes.Equal(data[121:169], filled(48, 0x44)) {
		t.Error("encrypted destination not at 121..169")
	}
	if !bytes.Equal(data[169:1289], filled(1120, 0x55)) {
		t.Error("ciphertext not at 169..1289")
	}
	if data[1289] != 1 || data[1290] != 0 || data[1291] != 1 {
		t.Errorf("flags at 1289..1292 = %v", data[1289:1292])
	}
	if data[1292] != 254 {
		t.Errorf("bump at 1292 = %d", data[1292])
	}

	back, err := DecodeDepositRecord(data)
	if err != nil {
		t.Fatalf("DecodeDepositRecord() error = %v", err)
	}
	if *back != *r {
		t.Error("decoded record differs from the original")
	}
	if !back.HasCiphertext() {
		t.Error("HasCiphertext() = false")
	}
}

func TestOutputEscrow_Offsets(t *testing.T) {
	e := &OutputEscrow{Amount: 42, IsVerified: true, Bump: 7}
	copy(e.StealthPubkey[:], filled(32, 0xaa))
	copy(e.VerifiedDestination[:], filled(32, 0xbb))

	data := e.Encode()
	if len(data) != 83 {
		t.Fatalf("encoded size = %d, want 83", len(data))
	}
	if !bytes.Equal(data[8:40], filled(32, 0xaa)) {
		t.Error("stealth pubkey not at 8..40")
	}
	if binary.LittleEndian.Uint64(data[40:48]) != 42 {
		t.Error("amount not at 40..48")
	}
	if !bytes.Equal(data[48:80], filled(32, 0xbb)) {
		t.Error("verified destination not at 48..80")
	}
	if data[80] != 1 || data[81] != 0 || data[82] != 7 {
		t.Errorf("tail bytes = %v", data[80:83])
	}

	back, err := DecodeOutputEscrow(data)
	if err != nil {
		t.Fatalf("DecodeOutputEscrow() error = %v", err)
	}
	if *back != *e {
		t.Error("decoded escrow differs from the original")
	}
}

func TestInputEscrow_Offsets(t *testing.T) {
	e := &InputEscrow{SequenceID: 9, Amount: 1000, Pooled: true, Bump: 250}
	data := e.Encode()
	if len(data) != 26 {
		t.Fatalf("encoded size = %d, want 26", len(data))
	}
	if binary.LittleEndian.Uint64(data[8:16]) != 9 || binary.LittleEndian.Uint64(data[16:24]) != 1000 {
		t.Error("sequence id or amount misplaced")
	}
	if data[24] != 1 || data[25] != 250 {
		t.Errorf("tail bytes = %v", data[24:26])
	}
	back, err := DecodeInputEscrow(data)
	if err != nil || *back != *e {
		t.Errorf("DecodeInputEscrow() = %+v, %v", back, err)
	}
}

func TestPool_Offsets(t *testing.T) {
	p := &Pool{LastDepositID: 77, TotalDeposits: 78, Bump: 253}
	copy(p.Authority[:], filled(32, 0x99))
	data := p.Encode()
	if len(data) != 57 {
		t.Fatalf("encoded size = %d, want 57", len(data))
	}
	if !bytes.Equal(data[8:40], filled(32, 0x99)) {
		t.Error("authority not at 8..40")
	}
	if binary.LittleEndian.Uint64(data[40:48]) != 77 || binary.LittleEndian.Uint64(data[48:56]) != 78 {
		t.Error("counters misplaced")
	}
	back, err := DecodePool(data)
	if err != nil || *back != *p {
		t.Errorf("DecodePool() = %+v, %v", back, err)
	}
}

func TestDecode_Rejects(t *testing.T) {
	record := (&DepositRecord{}).Encode()
	escrow := (&OutputEscrow{}).Encode()

	if _, err := DecodeDepositRecord(record[:100]); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("short record error = %v, want ErrInvalidAccountData", err)
	}
	if _, err := DecodeOutputEscrow(record[:83]); !errors.Is(err, ErrDiscriminatorMismatch) {
		t.Errorf("wrong type error = %v, want ErrDiscriminatorMismatch", err)
	}
	if _, err := DecodePool(escrow); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("escrow as pool error = %v, want ErrInvalidAccountData", err)
	}
	if (&DepositRecord{}).HasCiphertext() {
		t.Error("empty record reports ciphertext")
	}
}
