// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/bdr-fiscal/tse-driver/pkg/block"
	"github.com/bdr-fiscal/tse-driver/pkg/cmdutil"
	"github.com/bdr-fiscal/tse-driver/pkg/command"
	"github.com/bdr-fiscal/tse-driver/pkg/tseapi"
	"github.com/bdr-fiscal/tse-driver/pkg/tselog"
	"github.com/bdr-fiscal/tse-driver/pkg/transport"
)

// appContext is the context struct kong hands to every subcommand's
// Run method: one already-open TSE session for the process lifetime.
type appContext struct {
	session *tseapi.Session
	timeout time.Duration
}

// newAppContext opens the block device, brings the MSC transport up
// (suspend-off handshake included), and wires the command/tseapi
// layers on top. The returned close func tears down in reverse order.
func newAppContext(tsePath string, timeout time.Duration, debug bool) (*appContext, func(), error) {
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	log := tselog.New(level)

	dev, err := block.Open(cmdutil.DevicePath(tsePath))
	if err != nil {
		return nil, func() {}, fmt.Errorf("block.Open: %w", err)
	}

	msc, err := transport.Start(dev, log, timeout)
	if err != nil {
		dev.Close()
		return nil, func() {}, fmt.Errorf("transport.Start: %w", err)
	}

	cmdTransport := command.NewTransport(msc, timeout)
	session := tseapi.New(cmdTransport)

	closeFn := func() {
		if err := msc.Close(timeout); err != nil {
			log.Errorf("session close failed: %v", err)
		}
	}
	return &appContext{session: session, timeout: timeout}, closeFn, nil
}

var cli struct {
	TsePath string        `required:"" short:"m" help:"Mount point of the TSE's public partition (the directory that holds TSE-IO.bin)"`
	Timeout time.Duration `optional:"" default:"10s" help:"Deadline for the suspend handshake and each command round-trip"`
	Debug   bool          `optional:"" help:"Hex-dump every block read/written"`

	Start          startCmd          `cmd:"" help:"Wake the device and report firmware version and serial"`
	PinStates      pinStatesCmd      `cmd:"" help:"Report which of the four PINs/PUKs are provisioned"`
	InitPins       initPinsCmd       `cmd:"" help:"Provision the Admin and TimeAdmin PUK/PIN pairs"`
	Auth           authCmd           `cmd:"" help:"Authenticate as Admin or TimeAdmin"`
	Unblock        unblockCmd        `cmd:"" help:"Clear a blocked PIN using its PUK"`
	Logout         logoutCmd         `cmd:"" help:"End the current authenticated user's session"`
	Init           initCmd           `cmd:"" help:"Initialize the TSE after provisioning"`
	UpdateTime     updateTimeCmd     `cmd:"" help:"Push the current time to the device"`
	Serials        serialsCmd        `cmd:"" help:"Report the TSE and secure element serial numbers"`
	MapKey         mapKeyCmd         `cmd:"" help:"Associate an ERS identifier with a signing key slot"`
	StartTxn       startTxnCmd       `cmd:"" help:"Start a fiscal transaction"`
	UpdateTxn      updateTxnCmd      `cmd:"" help:"Attach process data to an open transaction"`
	FinishTxn      finishTxnCmd      `cmd:"" help:"Finish and sign a transaction"`
	Export         exportCmd         `cmd:"" help:"Export stored log data for a client id"`
	DeleteUpTo     deleteUpToCmd     `cmd:"" help:"Delete exported log data up to a transaction number"`
	Shutdown       shutdownCmd       `cmd:"" help:"Cleanly power down the secure element"`
	UpdateCert     updateCertCmd     `cmd:"" help:"Replace the signing certificate chain"`
	FactoryReset   factoryResetCmd   `cmd:"" help:"Irreversibly wipe the device back to factory state"`
	FirmwareUpdate firmwareUpdateCmd `cmd:"" help:"Send one firmware-image chunk"`
}

type startCmd struct{}

func (c *startCmd) Run(ctx *appContext) error {
	info, err := ctx.session.Start()
	if err != nil {
		return err
	}
	spew.Dump(info)
	return nil
}

type pinStatesCmd struct{}

func (c *pinStatesCmd) Run(ctx *appContext) error {
	states, err := ctx.session.PinStates()
	if err != nil {
		return err
	}
	fmt.Printf("AdminPUK=%v AdminPIN=%v TimeAdminPUK=%v TimeAdminPIN=%v\n", states[0], states[1], states[2], states[3])
	return nil
}

type initPinsCmd struct {
	AdminPuk     string `required:"" help:"Admin PUK, ASCII"`
	AdminPin     string `required:"" help:"Admin PIN, ASCII"`
	TimeAdminPuk string `required:"" help:"TimeAdmin PUK, ASCII"`
	TimeAdminPin string `required:"" help:"TimeAdmin PIN, ASCII"`
}

func (c *initPinsCmd) Run(ctx *appContext) error {
	return ctx.session.InitializePins([]byte(c.AdminPuk), []byte(c.AdminPin), []byte(c.TimeAdminPuk), []byte(c.TimeAdminPin))
}

type authCmd struct {
	User                string `required:"" enum:"Admin,TimeAdmin" help:"User id to authenticate as"`
	cmdutil.SecretEmbed `embed:""`
}

func (c *authCmd) Run(ctx *appContext) error {
	outcome, err := ctx.session.AuthenticateUser(tseapi.UserId(c.User), c.Bytes())
	if err != nil {
		return err
	}
	fmt.Printf("result=%s remaining_retries=%d\n", outcome.Result, outcome.RemainingRetries)
	return nil
}

type unblockCmd struct {
	User   string `required:"" enum:"Admin,TimeAdmin" help:"User id to unblock"`
	Puk    string `required:"" help:"PUK, ASCII"`
	NewPin string `required:"" help:"Replacement PIN, ASCII"`
}

func (c *unblockCmd) Run(ctx *appContext) error {
	result, err := ctx.session.UnblockUser(tseapi.UserId(c.User), []byte(c.Puk), []byte(c.NewPin))
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

type logoutCmd struct{}

func (c *logoutCmd) Run(ctx *appContext) error {
	return ctx.session.Logout()
}

type initCmd struct{}

func (c *initCmd) Run(ctx *appContext) error {
	return ctx.session.Initialize()
}

type updateTimeCmd struct {
	UnixSeconds uint64 `optional:"" help:"UNIX seconds to push; defaults to the current time"`
}

func (c *updateTimeCmd) Run(ctx *appContext) error {
	t := c.UnixSeconds
	if t == 0 {
		t = uint64(nowUnix())
	}
	return ctx.session.UpdateTime(t)
}

type serialsCmd struct{}

func (c *serialsCmd) Run(ctx *appContext) error {
	tseSerial, seSerial, err := ctx.session.GetSerialNumbers()
	if err != nil {
		return err
	}
	fmt.Printf("tse=% x secure_element=% x\n", tseSerial, seSerial)
	return nil
}

type mapKeyCmd struct {
	ErsId string `required:""`
	KeyId uint16 `required:""`
}

func (c *mapKeyCmd) Run(ctx *appContext) error {
	return ctx.session.MapERStoKey([]byte(c.ErsId), c.KeyId)
}

type startTxnCmd struct {
	ClientId    string `required:""`
	ProcessData string `required:""`
	ProcessType string `required:""`
}

func (c *startTxnCmd) Run(ctx *appContext) error {
	num, err := ctx.session.StartTransaction(c.ClientId, []byte(c.ProcessData), c.ProcessType)
	if err != nil {
		return err
	}
	fmt.Println(num)
	return nil
}

type updateTxnCmd struct {
	TransactionNumber uint32 `required:""`
	ClientId          string `required:""`
	ProcessData       string `required:""`
}

func (c *updateTxnCmd) Run(ctx *appContext) error {
	return ctx.session.UpdateTransaction(c.TransactionNumber, c.ClientId, []byte(c.ProcessData))
}

type finishTxnCmd struct {
	TransactionNumber uint32 `required:""`
	ClientId          string `required:""`
	ProcessData       string `required:""`
	ProcessType       string `required:""`
}

func (c *finishTxnCmd) Run(ctx *appContext) error {
	return ctx.session.FinishTransaction(c.TransactionNumber, c.ClientId, []byte(c.ProcessData), c.ProcessType)
}

type exportCmd struct {
	ClientId string `required:""`
}

func (c *exportCmd) Run(ctx *appContext) error {
	data, err := ctx.session.ExportData(c.ClientId)
	if err != nil {
		return err
	}
	spew.Dump(data)
	return nil
}

type deleteUpToCmd struct {
	TransactionNumber uint32 `required:""`
}

func (c *deleteUpToCmd) Run(ctx *appContext) error {
	return ctx.session.DeleteUpTo(c.TransactionNumber)
}

type shutdownCmd struct{}

func (c *shutdownCmd) Run(ctx *appContext) error {
	return ctx.session.Shutdown()
}

type updateCertCmd struct {
	CertPath string `required:"" type:"accessiblefile" help:"Path to the new certificate chain"`
}

func (c *updateCertCmd) Run(ctx *appContext) error {
	data, err := readFile(c.CertPath)
	if err != nil {
		return err
	}
	return ctx.session.UpdateCertificate(data)
}

type factoryResetCmd struct {
	Confirm bool `optional:"" help:"Must be set: this irreversibly wipes all fiscal state"`
}

func (c *factoryResetCmd) Run(ctx *appContext) error {
	if !c.Confirm {
		return fmt.Errorf("refusing factory-reset without --confirm")
	}
	return ctx.session.FactoryReset()
}

type firmwareUpdateCmd struct {
	ChunkPath string `required:"" type:"accessiblefile" help:"Path to one firmware-image chunk"`
}

func (c *firmwareUpdateCmd) Run(ctx *appContext) error {
	data, err := readFile(c.ChunkPath)
	if err != nil {
		return err
	}
	return ctx.session.FirmwareUpdate(data)
}
