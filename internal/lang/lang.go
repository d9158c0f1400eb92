// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package lang provides command text in alternative languages.
//
// The language precedence is Lang, then the "LANG" environment
// variable, then Default and finally en_US.UTF-8.
package lang

import "os"

const (
	DeDE = "de_DE.UTF-8"
	EnGB = "en_GB.UTF-8"
	EnUS = "en_US.UTF-8"
	FrFR = "fr_FR.UTF-8"
	JaJP = "ja_JP.UTF-8"
	ZhCN = "zh_CN.UTF-8"
)

var (
	// Default may be set with
	//	-ldflags -X github.com/platinasystems/ipa/internal/lang.Default=fr_FR.UTF-8
	Default = EnUS

	// Lang overrides the environment when set.
	Lang string
)

type Alt map[string]string

// String returns the text in the preferred language available.
func (m Alt) String() string {
	for _, lang := range []string{Lang, os.Getenv("LANG"), Default, EnUS} {
		if lang == "" {
			continue
		}
		if s, found := m[lang]; found {
			return s
		}
	}
	return ""
}
