// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/alecthomas/kong"

	"github.com/bdr-fiscal/tse-driver/pkg/cmdutil"
)

const (
	programName = "tsectl"
	programDesc = "BSI TSE command-line driver"
)

func main() {
	ctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.Resolvers(cmdutil.ResolveSecret(false)),
		kong.NamedMapper("accessiblefile", cmdutil.AccessibleFileMapper()),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	appCtx, closeSession, err := newAppContext(cli.TsePath, cli.Timeout, cli.Debug)
	ctx.FatalIfErrorf(err)
	defer closeSession()

	err = ctx.Run(appCtx)
	ctx.FatalIfErrorf(err)
}
