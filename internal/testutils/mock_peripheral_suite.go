package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// MockPeripheralSuite provides a reusable test suite backed by an in-memory peripheral.
//
// Basic usage (default battery service):
//
//	type SessionSuite struct {
//	    testutils.MockPeripheralSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
// Custom device profile usage:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{0x00, 80})
//
//	    s.MockPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockPeripheralSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	// PeripheralBuilder is consumed by SetupTest; configure it through WithPeripheral.
	PeripheralBuilder *PeripheralBuilder

	Peripheral *Peripheral
	Adapter    *Adapter
}

// SetupSuite runs once before all tests in the suite.
func (s *MockPeripheralSuite) SetupSuite() {
	s.TestTimeout = 2 * time.Second
}

// SetupTest builds the peripheral and an adapter advertising it.
func (s *MockPeripheralSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	s.Peripheral = s.PeripheralBuilder.Build()
	s.Adapter = NewAdapter(s.Peripheral)

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the peripheral builder after each test.
func (s *MockPeripheralSuite) TearDownTest() {
	s.PeripheralBuilder = nil
	s.Peripheral = nil
	s.Adapter = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockPeripheralSuite) WithPeripheral() *PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralBuilder()
	}
	return s.PeripheralBuilder
}

// Char returns a characteristic of the built peripheral and fails the test when absent.
func (s *MockPeripheralSuite) Char(serviceUUID, charUUID string) *Characteristic {
	c := s.Peripheral.Characteristic(serviceUUID, charUUID)
	s.Require().NotNil(c, "characteristic %s/%s not configured", serviceUUID, charUUID)
	return c
}

// createDefaultPeripheralBuilder returns a peripheral with Battery Service (180F)
// and Battery Level (2A19) set to 50%.
func createDefaultPeripheralBuilder() *PeripheralBuilder {
	return NewPeripheralBuilder().
		FromJSON(`
		{
			"services": [
				{
					"uuid": "180F",
					"characteristics": [
						{ "uuid": "2A19", "properties": "read,notify", "value": [50] }
					]
				}
			]
		}`)
}
