package main

import (
	"os"

	npmauthcmd "github.com/telekom/npmauth/pkg/npmauth/cmd"
)

func main() {
	root := npmauthcmd.NewRootCommand(npmauthcmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
