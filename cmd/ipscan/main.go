// Command ipscan scans IPv4 ranges for live hosts, either once from the
// command line or continuously behind an HTTP API.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
