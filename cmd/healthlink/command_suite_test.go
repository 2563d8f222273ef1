package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/srg/healthlink/internal/device"
	"github.com/srg/healthlink/internal/testutils"
)

// healthProfile is a heart rate monitor with a notify-only FORA channel.
const healthProfile = `
{
	"services": [
		{ "uuid": "180D", "characteristics": [ { "uuid": "2A37", "properties": "read,notify", "value": [0, 80] } ] },
		{ "uuid": "00001523-1212-efde-1523-785feabcd123", "characteristics": [
			{ "uuid": "00001524-1212-efde-1523-785feabcd123", "properties": "notify" }
		] }
	]
}`

// syncBuffer is a bytes.Buffer safe for the concurrent writers of a running command.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandSuite runs healthlink commands against an in-memory peripheral.
// All cmd/healthlink suites embed it.
type CommandSuite struct {
	testutils.MockPeripheralSuite

	stdin       io.Reader
	origAdapter func(*logrus.Logger) (device.Adapter, error)
}

func (s *CommandSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.WithPeripheral().FromJSON(healthProfile)
	}
	s.MockPeripheralSuite.SetupTest()

	s.stdin = strings.NewReader("")
	resetFlags(rootCmd)

	s.origAdapter = newAdapter
	newAdapter = func(*logrus.Logger) (device.Adapter, error) {
		return s.Adapter, nil
	}
}

func (s *CommandSuite) TearDownTest() {
	newAdapter = s.origAdapter
	s.MockPeripheralSuite.TearDownTest()
}

// UsePeripheral replaces the advertised peripheral for the current test.
func (s *CommandSuite) UsePeripheral(b *testutils.PeripheralBuilder) {
	s.Peripheral = b.Build()
	s.Adapter = testutils.NewAdapter(s.Peripheral)
}

// Execute runs the root command with args and returns combined stdout and stderr.
func (s *CommandSuite) Execute(args ...string) (string, error) {
	out := &syncBuffer{}
	err := s.ExecuteContext(context.Background(), out, args...)
	return out.String(), err
}

// ExecuteContext runs the root command with args, writing both streams to out.
func (s *CommandSuite) ExecuteContext(ctx context.Context, out io.Writer, args ...string) error {
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetIn(s.stdin)
	rootCmd.SetArgs(args)
	resetContexts(rootCmd)
	return rootCmd.ExecuteContext(ctx)
}

// resetContexts clears the context cobra keeps on every subcommand after a run.
// A subcommand only inherits the parent context while its own is unset.
func resetContexts(cmd *cobra.Command) {
	var unset context.Context
	for _, c := range cmd.Commands() {
		c.SetContext(unset)
		resetContexts(c)
	}
}

// resetFlags restores every flag of cmd and its subcommands to its default so
// consecutive executions of the package-level commands do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
