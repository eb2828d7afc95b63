package custody

import (
	"github.com/stealthpool/client-go/internal/apierrors"
	"github.com/stealthpool/client-go/internal/crypto"
)

// worker is the state owned by the custody goroutine. Nothing outside run()
// may read or write it.
type worker struct {
	derive     func(seed []byte) (*crypto.HybridKeyPair, error)
	keys       *crypto.HybridKeyPair
	decap      *crypto.Decapsulator
	viewSecret []byte
}

func (w *worker) handle(req request) response {
	resp := response{id: req.id}
	switch req.kind {
	case kindInit:
		resp.keys, resp.err = w.init(req.seed, req.exclusive)
	case kindCheckEscrows:
		resp.matches, resp.err = w.checkEscrows(req.batch)
	case kindWipe:
		if w.keys == nil {
			resp.err = apierrors.ErrNotInitialized
			break
		}
		w.wipe()
	case kindIsReady:
		resp.ready = w.keys != nil
	}
	return resp
}

func (w *worker) init(seed []byte, exclusive bool) (*PublicKeys, error) {
	defer crypto.Wipe(seed)
	if exclusive && w.keys != nil {
		return nil, apierrors.ErrAlreadyInitialized
	}
	w.wipe()

	keys, err := w.derive(seed)
	if err != nil {
		return nil, &apierrors.CryptoError{Op: "derive keypair", Err: err}
	}
	decap, err := crypto.NewDecapsulator(&keys.KEM.Secret)
	if err != nil {
		keys.Wipe()
		return nil, &apierrors.CryptoError{Op: "unpack kem secret", Err: err}
	}
	w.keys = keys
	w.decap = decap
	w.viewSecret = crypto.ViewX25519Secret(keys)

	return &PublicKeys{
		SpendPubkey: keys.SpendPublic(),
		ViewPubkey:  keys.ViewPublic(),
		KEM: crypto.KEMPublicKey{
			MLKEM:  append([]byte(nil), keys.KEM.Public.MLKEM...),
			X25519: keys.KEM.Public.X25519,
		},
	}, nil
}

// checkEscrows returns the owned subset of batch. Candidates that fail
// decapsulation or the ownership check are skipped.
func (w *worker) checkEscrows(batch []Candidate) ([]Match, error) {
	if w.keys == nil {
		return nil, apierrors.ErrNotInitialized
	}
	var matches []Match
	for i := range batch {
		c := &batch[i]
		ss := w.sharedSecret(c)
		if ss == nil {
			continue
		}
		if c.CheckViewTag && crypto.DeriveViewTag(ss) != c.ViewTag {
			crypto.Wipe(ss)
			continue
		}
		if !crypto.IsOwner(ss, c.StealthPubkey[:]) {
			crypto.Wipe(ss)
			continue
		}
		matches = append(matches, Match{Index: i, SharedSecret: ss})
	}
	return matches, nil
}

func (w *worker) sharedSecret(c *Candidate) []byte {
	if c.Legacy {
		ss, err := crypto.LegacySharedSecret(w.viewSecret, c.EphemeralPubkey[:])
		if err != nil {
			return nil
		}
		return ss
	}
	ss, err := w.decap.Decapsulate(c.Ciphertext)
	if err != nil {
		return nil
	}
	return ss
}

func (w *worker) wipe() {
	if w.keys != nil {
		w.keys.Wipe()
		w.keys = nil
	}
	if w.decap != nil {
		w.decap.Wipe()
		w.decap = nil
	}
	crypto.Wipe(w.viewSecret)
	w.viewSecret = nil
}
