// Command squawkbox runs the companion-pet voice daemon and its helper verbs.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
