// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lang

import (
	"os"
	"testing"
)

var hello = Alt{
	EnUS: "hello",
	FrFR: "bonjour",
	JaJP: "こんにちは",
	ZhCN: "你好",
}

func Test(t *testing.T) {
	defer func() { Lang = "" }()
	for lang, expect := range hello {
		Lang = lang
		if s := hello.String(); s != expect {
			t.Fatalf("%q != %q", s, expect)
		}
	}
}

func TestFallback(t *testing.T) {
	defer func(s string) { os.Setenv("LANG", s) }(os.Getenv("LANG"))
	os.Setenv("LANG", DeDE)
	Lang = ""
	if s := hello.String(); s != "hello" {
		t.Errorf("got %q want %q", s, "hello")
	}
	os.Setenv("LANG", FrFR)
	if s := hello.String(); s != "bonjour" {
		t.Errorf("got %q want %q", s, "bonjour")
	}
	if s := (Alt{}).String(); s != "" {
		t.Errorf("got %q want empty", s)
	}
}
