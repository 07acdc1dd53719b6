// sign-order builds the canonical signing message for an order JSON
// and prints the base64 signature a client would attach to it. With no
// secret key it generates a fresh keypair first, so the output can be
// submitted as-is against the printed address.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/stellar/go/keypair"

	"github.com/stellarvault/matching-engine/pkg/core"
	"github.com/stellarvault/matching-engine/pkg/crypto"
)

func main() {
	secret := flag.String("secret", "", "Stellar secret seed (S...); generates a new keypair if empty")
	orderJSON := flag.String("order", "", "order JSON to sign")
	flag.Parse()

	if *orderJSON == "" {
		fmt.Fprintln(os.Stderr, "usage: sign-order -order '<order json>' [-secret S...]")
		os.Exit(1)
	}

	var kp *keypair.Full
	var err error
	if *secret == "" {
		kp, err = keypair.Random()
		if err != nil {
			fatal("generate keypair: %v", err)
		}
		fmt.Printf("Address: %s\n", kp.Address())
		fmt.Printf("Secret:  %s (keep this secret)\n\n", kp.Seed())
	} else {
		kp, err = keypair.ParseFull(*secret)
		if err != nil {
			fatal("parse secret: %v", err)
		}
	}

	var order core.Order
	if err := json.Unmarshal([]byte(*orderJSON), &order); err != nil {
		fatal("parse order: %v", err)
	}
	if order.UserAddress == "" {
		order.UserAddress = kp.Address()
	}

	fmt.Printf("Message:   %s\n", crypto.OrderMessage(&order))

	signature, err := crypto.SignOrder(kp, &order)
	if err != nil {
		fatal("sign: %v", err)
	}
	fmt.Printf("Signature: %s\n", signature)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
