// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This brings up a simulated IPA v3.5.1 engine and reports its state.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/platinasystems/ipa/cmd"
	"github.com/platinasystems/ipa/cmd/ipactl"
)

func main() {
	c := new(ipactl.Command)
	args := append([]string{filepath.Base(os.Args[0])}, os.Args[1:]...)
	cmd.Swap(args)
	if s := cmd.Help(c, args[0]); len(s) > 0 {
		fmt.Println(s)
		return
	}
	if err := c.Main(args[1:]...); err != nil {
		fmt.Fprintf(os.Stderr, "%v: %v\n", c, err)
		os.Exit(1)
	}
}
