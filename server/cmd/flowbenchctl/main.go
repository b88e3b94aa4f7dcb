// Command flowbenchctl queries a running flowbench-server over its REST API
// and prints the JSON responses.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flowbenchctl:", err)
		os.Exit(1)
	}
}
