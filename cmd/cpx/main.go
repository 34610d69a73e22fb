// Command cpx is a short alias that replaces itself with critpath.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

const target = "critpath"

func main() {
	bin, err := exec.LookPath(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cpx: %s not found on PATH\n", target)
		os.Exit(1)
	}
	args := append([]string{target}, os.Args[1:]...)
	if err := syscall.Exec(bin, args, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "cpx: %v\n", err)
		os.Exit(1)
	}
}
