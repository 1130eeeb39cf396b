// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package main

import "fmt"

type version struct {
	Major, Minor, Patch int
	Label               string
}

var ver = version{
	Major: 1,
	Minor: 0,
	Patch: 0,
	Label: "pre",
}

// CommitHash may be set on the build command line:
// go build -ldflags "-X main.CommitHash=`git rev-parse --short HEAD`"
var CommitHash string

// AppName is the name of the chart data server.
const AppName string = "chartdata"

func (v *version) String() string {
	var hashStr string
	if CommitHash != "" {
		hashStr = "+" + CommitHash
	}
	if v.Label != "" {
		return fmt.Sprintf("%d.%d.%d-%s%s",
			v.Major, v.Minor, v.Patch, v.Label, hashStr)
	}
	return fmt.Sprintf("%d.%d.%d%s",
		v.Major, v.Minor, v.Patch, hashStr)
}

// Version returns the version string, with the commit hash if known.
func Version() string {
	return ver.String()
}
