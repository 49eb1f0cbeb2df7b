// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bdr-fiscal/tse-driver/pkg/block"
	"github.com/bdr-fiscal/tse-driver/pkg/cmdutil"
	"github.com/bdr-fiscal/tse-driver/pkg/command"
	"github.com/bdr-fiscal/tse-driver/pkg/tseapi"
	"github.com/bdr-fiscal/tse-driver/pkg/tselog"
	"github.com/bdr-fiscal/tse-driver/pkg/transport"
)

var (
	tsePath   = flag.String("tse", "", "Mount point of the TSE's public partition")
	timeout   = flag.Duration("timeout", transport.DefaultTimeout, "Deadline for the suspend handshake and each command")
	outputFmt = flag.String("output", "table", "Output format; one of [table, openmetrics]")
)

// sessionStat is everything tsestat reports about one TSE.
type sessionStat struct {
	Path           string
	Version        string
	Serial         []byte
	PinStates      [4]bool
	PollRetries    int
	SuspendToggles int
	Err            error
}

func main() {
	flag.Parse()
	if *tsePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: tsestat -tse <mount point> [-output table|openmetrics]")
		os.Exit(2)
	}

	stat := gather(*tsePath, *timeout)

	switch *outputFmt {
	case "openmetrics":
		outputMetrics(stat)
	case "table":
		outputTable(stat)
	default:
		fmt.Fprintf(os.Stderr, "unsupported output format %q\n", *outputFmt)
		os.Exit(2)
	}
}

func gather(path string, timeout time.Duration) sessionStat {
	stat := sessionStat{Path: path}

	log := tselog.New(logrus.WarnLevel)
	dev, err := block.Open(cmdutil.DevicePath(path))
	if err != nil {
		stat.Err = fmt.Errorf("block.Open: %w", err)
		return stat
	}

	msc, err := transport.Start(dev, log, timeout)
	if err != nil {
		dev.Close()
		stat.Err = fmt.Errorf("transport.Start: %w", err)
		return stat
	}
	defer func() {
		if err := msc.Close(timeout); err != nil {
			log.Errorf("session close failed: %v", err)
		}
	}()

	session := tseapi.New(command.NewTransport(msc, timeout))

	info, err := session.Start()
	if err != nil {
		stat.Err = fmt.Errorf("Start: %w", err)
		return stat
	}
	stat.Version = info.Version
	stat.Serial = info.Serial

	if states, err := session.PinStates(); err != nil {
		stat.Err = fmt.Errorf("PinStates: %w", err)
	} else {
		stat.PinStates = states
	}

	stat.PollRetries = msc.PollRetries()
	stat.SuspendToggles = msc.SuspendToggles()
	return stat
}

func outputTable(stat sessionStat) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "PATH\tVERSION\tSERIAL\tPINS_SET\tPOLL_RETRIES\tSUSPEND_TOGGLES\tERROR\n")
	errStr := "-"
	if stat.Err != nil {
		errStr = stat.Err.Error()
	}
	pinsSet := 0
	for _, set := range stat.PinStates {
		if set {
			pinsSet++
		}
	}
	fmt.Fprintf(w, "%s\t%s\t% x\t%d/4\t%d\t%d\t%s\n",
		stat.Path, stat.Version, stat.Serial, pinsSet, stat.PollRetries, stat.SuspendToggles, errStr)
	if err := w.Flush(); err != nil {
		log.Fatalf("failed to flush table output: %v", err)
	}
}
