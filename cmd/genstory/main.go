// Command genstory runs the multi-agent story studio.
package main

import "github.com/zhs007/genstory/internal/cli"

func main() {
	cli.Execute()
}
