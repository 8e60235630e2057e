// Command generate-keys outputs fresh key pairs in the format used for ballot
// issuers and leaf owners.
package main

import (
	"encoding/json"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Bren2010/antani/crypto/signing"
	"github.com/Bren2010/antani/log"
)

var count = flag.IntP("count", "n", 1, "Number of key pairs to generate.")

func main() {
	flag.Parse()
	if *count < 1 {
		log.Fatalf("Usage: generate-keys [-n count]")
	}

	enc := json.NewEncoder(os.Stdout)
	for range *count {
		kp, err := signing.Keygen()
		if err != nil {
			log.Fatalf("failed to generate key pair: %v", err)
		} else if err := enc.Encode(kp); err != nil {
			log.Fatalf("%v", err)
		}
	}
}
