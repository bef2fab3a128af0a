package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/device"
	"github.com/srg/polarhr/internal/gatt"
	"github.com/srg/polarhr/internal/sink"
)

var heartbeat = []byte{0x10, 72, 0x00, 0x04}

func (s *CommandSuite) notify() {
	s.Eventually(func() bool {
		return s.session.Notify(charPath, heartbeat)
	}, 5*time.Second, 5*time.Millisecond, "strap never subscribed")
}

func (s *CommandSuite) TestRunStreamsToStdout() {
	s.addStrap(nameH9)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout, done := s.Start(ctx)
	s.notify()
	s.Eventually(func() bool {
		return strings.HasSuffix(stdout.String(), ",72,1000\n")
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	s.NoError(s.Wait(done), "cancellation is a clean exit")
	s.True(s.session.closed)
	s.Empty(s.session.ActiveWatches(), "signal matches removed on exit")
}

func (s *CommandSuite) TestRunJSONLines() {
	s.addStrap(nameH9)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout, done := s.Start(ctx, "--format", "jsonl", "--no-extras")
	s.notify()
	s.Eventually(func() bool {
		return strings.HasSuffix(stdout.String(), `"bpm":72,"rr":[1000]}`+"\n")
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	s.NoError(s.Wait(done))
}

func (s *CommandSuite) TestRunAutoOutputWithExtras() {
	s.addStrap("Polar H10 8A8F192B")
	modelPath := devicePath + "/service0010/char0011"
	s.session.AddCharacteristic(modelPath, string(gatt.ModelNumber), false)
	s.session.SetValue(modelPath, []byte("H10\x00"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout, done := s.Start(ctx, "--output", "auto")
	s.notify()

	samples := filepath.Join(s.home, ".cache", "polarh10")
	s.Eventually(func() bool {
		data, err := os.ReadFile(samples)
		return err == nil && strings.HasSuffix(string(data), ",72,1000\n")
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	s.NoError(s.Wait(done))
	s.Empty(stdout.String(), "samples go to the file, not stdout")

	info, err := os.ReadFile(filepath.Join(s.home, ".cache", "polarh10_device_info"))
	s.Require().NoError(err)
	s.Contains(string(info), ",model_number=H10\n")
}

func (s *CommandSuite) TestRunDeviceNotFound() {
	_, _, err := s.ExecuteCommand(context.Background(), "--device", "Polar H10 00000000")

	s.ErrorIs(err, device.ErrDeviceNotFound)
	s.Contains(err.Error(), "Polar H10 00000000")
	s.Contains(FormatUserError(err), "only advertises while worn")
	s.True(s.session.closed)
}

func (s *CommandSuite) TestRunCancelledDuringScan() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.ExecuteCommand(ctx)

	s.ErrorIs(err, context.Canceled, "main treats this as a clean exit")
}

func (s *CommandSuite) TestRunOutputLocked() {
	s.addStrap(nameH9)
	path := filepath.Join(s.T().TempDir(), "hr.csv")
	held, err := sink.OpenOutput(path, "", sink.FormatCSV, nil)
	s.Require().NoError(err)
	defer held.Close()

	_, _, err = s.ExecuteCommand(context.Background(), "--output", path)

	s.ErrorIs(err, sink.ErrOutputLocked)
	s.Empty(s.session.ActiveWatches())
}

func (s *CommandSuite) TestRunRejectsBadFlags() {
	opened := false
	openBus = func(_ *logrus.Logger) (busSession, error) {
		opened = true
		return s.session, nil
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format", []string{"--format", "xml"}, "unknown output format"},
		{"log level", []string{"--log-level", "chatty"}, "invalid log level"},
		{"adapter", []string{"--adapter", "hci0"}, "object path"},
		{"osc target", []string{"--osc", "localhost"}, "invalid OSC target"},
		{"arguments", []string{"extra"}, "unknown command"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, _, err := s.ExecuteCommand(context.Background(), tt.args...)
			s.ErrorContains(err, tt.want)
		})
	}
	s.False(opened || s.session.CountCalls("StartDiscovery") > 0)
}
