// Command vfsshell is the interactive driver for the virtual filesystem: a
// single positional argument names the backing file, then stdin is read one
// command per line until `exit`/`quit`/EOF, per spec.md §6. Grounded on
// cmd/main.go's urfave/cli/v2 App in the teacher driver.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ButterDevelop/c-virtual-file-system/engine"
	"github.com/ButterDevelop/c-virtual-file-system/shell"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "vfsshell",
		Usage:     "Interact with an inode-based virtual filesystem hosted in a single backing file",
		ArgsUsage: "BACKING_FILE",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("expected exactly one argument: the path to the backing file", 1)
	}
	path := c.Args().Get(0)

	eng := engine.New()
	if err := eng.Mount(path); err != nil {
		fmt.Println("no existing filesystem found at", path, "- use `format SIZE` to create one")
	}
	defer eng.Close()

	s := shell.New(eng, path, os.Stdout)
	s.Run(os.Stdin)
	return nil
}
