// Command flatstore is the flatstore CLI binary.
package main

import "github.com/nomasters/flatstore/cmd"

func main() {
	cmd.Execute()
}
