/*
Copyright © 2023 John Doak <doak@askdoak.com>
*/

// Command threadkit runs the threadkit demos with a configurable executor.
package main

import "github.com/gostdlib/threadkit/cmd/threadkit/cmd"

func main() {
	cmd.Execute()
}
