// burrow CLI - expose a local HTTP service through a cloud relay
package main

import "github.com/getburrow/burrow/pkg/cli"

func main() {
	cli.Execute()
}
