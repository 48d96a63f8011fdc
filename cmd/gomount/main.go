// Command gomount serves an application composed from mount.json modules.
//
//	gomount serve --config configs/config.yaml
//	gomount inspect examples/shop
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
