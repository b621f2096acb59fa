// Command stylesync runs the stylesync CLI and language server.
package main

import "github.com/bolasblack/stylesync/internal/cli"

func main() {
	cli.Execute()
}
