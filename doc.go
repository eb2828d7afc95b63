// Package stealthpool provides a Go client for a stealth payment pool: private
// payments on a base ledger that settle through a TEE rollup, addressed to
// one-time stealth keys that only the recipient can recognise.
//
// Payments are addressed with a hybrid ML-KEM-768 + X25519 key encapsulation,
// so recognising them stays private against a future quantum adversary. The
// recipient's secret keys are derived from one wallet signature and never
// leave an isolated key custody goroutine.
//
// Sending:
//
//	client, err := stealthpool.New(wallet,
//	    stealthpool.WithBaseRPC("https://base.example"),
//	    stealthpool.WithRollupRPC("https://rollup.example"),
//	    stealthpool.WithProgram(programID, delegationID, authority),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	to, err := stealthpool.ParseMetaAddress(recipient)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	receipt, err := client.Send(ctx, stealthpool.SendParams{To: to, Amount: lamports})
//
// Receiving:
//
//	meta, err := client.Unlock(ctx) // the wallet signs once
//	fmt.Println("pay me at", meta)
//
//	cache := stealthpool.NewScanCache()
//	res, err := client.Scan(ctx, cache, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer res.Wipe()
//	for _, e := range res.Escrows {
//	    if e.Claimable() {
//	        _, err = client.ClaimAndWithdraw(ctx, e, stealthpool.Address{})
//	    }
//	}
package stealthpool
