package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/healthlink/internal/profile"
	"github.com/srg/healthlink/internal/testutils"
)

type ReadSuite struct {
	CommandSuite
}

func TestReadSuite(t *testing.T) {
	suite.Run(t, new(ReadSuite))
}

func (s *ReadSuite) TestText() {
	out, err := s.Execute("read", testutils.DefaultPeripheralAddress, "--format", "text")

	s.Require().NoError(err)
	s.Contains(out, "Connecting to Mock Oximeter (AA:BB:CC:DD:EE:FF)...")
	s.Contains(out, "heart_rate")
	s.Contains(out, "HR 80 bpm")
	s.Contains(out, "[00 50]")
	s.Contains(out, "fora: characteristic is notify-only")
	s.False(s.Peripheral.IsConnected(), "read disconnects when done")
}

func (s *ReadSuite) TestJSONLines() {
	out, err := s.Execute("read", "--format", "json")
	s.Require().NoError(err)

	var line map[string]any
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, "{") {
			s.Require().NoError(json.Unmarshal([]byte(l), &line))
			break
		}
	}
	s.Require().NotNil(line, out)
	s.Equal("heart_rate", line["source"])
	s.Equal("heart_rate", line["kind"])
	s.Equal("00 50", line["raw"])
	s.Equal(map[string]any{"heartRate": 80.0, "contactDetected": false}, line["measurement"])
}

func (s *ReadSuite) TestReadFailure() {
	s.Char(profile.HeartRateService, profile.HeartRateMeasurement).FailRead(errors.New("gatt timeout"))

	_, err := s.Execute("read", testutils.DefaultPeripheralAddress)

	s.ErrorContains(err, "gatt timeout")
}

func (s *ReadSuite) TestNoHealthProfile() {
	s.UsePeripheral(testutils.NewPeripheralBuilder().
		WithService("180F").
		WithCharacteristic("2A19", "read", []byte{50}))

	out, err := s.Execute("read", testutils.DefaultPeripheralAddress)

	s.ErrorIs(err, ErrNoHealthProfile)
	s.Contains(out, "180f")
}

func (s *ReadSuite) TestInvalidFormat() {
	_, err := s.Execute("read", "--format", "xml")

	s.ErrorContains(err, "invalid format 'xml'")
	s.Zero(s.Peripheral.ConnectCalls())
}
