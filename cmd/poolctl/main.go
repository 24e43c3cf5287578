// Command poolctl runs the TEE operator pool engine.
//
//	poolctl demo       drive two pools through the protocol on a manual clock
//	poolctl sweep      crash expired pools on the configured schedule
//	poolctl config     print the effective configuration
//	poolctl operator   derive an operator identity and its simulated quote
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "poolctl failed: %v\n", err)
		os.Exit(1)
	}
}
