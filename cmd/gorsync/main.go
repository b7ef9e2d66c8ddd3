// Command gorsync is a native Go rsync client and server (daemon-capable
// over a remote shell, same as upstream rsync's --server mode).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/oferchen/gorsync/internal/maincmd"
	"github.com/oferchen/gorsync/internal/rsyncdconfig"
	"github.com/oferchen/gorsync/internal/rsyncos"
)

func main() {
	osenv := rsyncos.Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if _, err := maincmd.MainEnv(context.Background(), &osenv, os.Args, &rsyncdconfig.Config{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
