// Command holdctl inspects and maintains the hold ledger.
package main

import (
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	a := newApp(os.Stdout)
	defer a.Close()
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}
