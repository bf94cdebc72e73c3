// gvmbridge is an HTTP bridge for GVM/OpenVAS scanning engines. It accepts
// scan requests over a REST API, drives them through the GMP protocol and
// serves translated results.
package main

import (
	"github.com/anstrom/gvmbridge/cmd/cli"
)

func main() {
	cli.Execute()
}
