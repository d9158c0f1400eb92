// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package cmd defines the interface of ipa commands.
package cmd

import (
	"strings"

	"github.com/platinasystems/ipa/internal/lang"
)

// Helpers are the flags Swap turns into a command.
var Helpers = map[string]struct{}{
	"apropos": struct{}{},
	"man":     struct{}{},
	"usage":   struct{}{},
}

type Cmd interface {
	Apropos() lang.Alt
	Main(...string) error
	// String returns the command name.
	String() string
	Usage() string
	/* Optional
	Man() lang.Alt
	*/
}

type manner interface {
	Man() lang.Alt
}

// Swap hyphen prefaced helper flags with command, so,
//
//	COMMAND -[-]HELPER [ARGS]...
//
// becomes
//
//	HELPER COMMAND [ARGS]...
func Swap(args []string) {
	if len(args) > 1 && strings.HasPrefix(args[1], "-") {
		opt := strings.TrimLeft(args[1], "-")
		if _, found := Helpers[opt]; found {
			args[1] = args[0]
			args[0] = opt
		}
	}
}

// Help returns the text of helper for v, or "" if helper isn't one.
func Help(v Cmd, helper string) string {
	switch helper {
	case "apropos":
		return v.String() + " - " + v.Apropos().String()
	case "usage":
		return "usage:\t" + v.Usage()
	case "man":
		s := "NAME\n\t" + v.String() + " - " + v.Apropos().String() +
			"\n\nSYNOPSIS\n\t" + v.Usage()
		if m, found := v.(manner); found {
			s += "\n" + m.Man().String()
		}
		return s
	}
	return ""
}
