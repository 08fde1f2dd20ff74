package poslink_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/attunepos/poslink/internal/bridge"
	"github.com/attunepos/poslink/internal/device"
	"github.com/attunepos/poslink/internal/platform"
	"github.com/attunepos/poslink/internal/testutils"
	"github.com/attunepos/poslink/pkg/poslink"
)

const (
	controllerAddr = "aa:bb:cc:dd:ee:10"
	controllerName = "POS-Terminal"
)

type SessionTestSuite struct {
	suite.Suite
	logger *logrus.Logger
}

func (suite *SessionTestSuite) SetupSuite() {
	suite.logger = logrus.New()
	suite.logger.SetOutput(io.Discard)
}

// controller builds a fake peripheral exposing the firmware service and
// command characteristic, plus a transport advertising it.
func (suite *SessionTestSuite) controller() (*testutils.FakeTransport, *testutils.FakeCharacteristic) {
	char := &testutils.FakeCharacteristic{
		ID:        poslink.DefaultCharacteristicUUID,
		Props:     device.PropRead | device.PropWrite | device.PropNotify,
		ReadValue: []byte("IDLE"),
	}
	svc := &testutils.FakeService{
		ID:    poslink.DefaultServiceUUID,
		Chars: []*testutils.FakeCharacteristic{char},
	}
	transport := &testutils.FakeTransport{
		Advertisements: []*testutils.FakeAdvertisement{
			{Address: controllerAddr, Name: controllerName, Rssi: -50},
			{Address: "aa:bb:cc:dd:ee:99", Name: "SomeHeadset", Rssi: -70},
		},
		Peripherals: map[string]*testutils.FakePeripheral{
			controllerAddr: testutils.NewFakePeripheral(controllerAddr, svc),
		},
	}
	return transport, char
}

func (suite *SessionTestSuite) newSession(transport *testutils.FakeTransport, opts poslink.Options) *poslink.Session {
	b := bridge.New(transport, platform.AllGranted(platform.GenerationModern), suite.logger)
	return poslink.NewSession(b, opts, suite.logger)
}

func (suite *SessionTestSuite) TestEndToEnd() {
	// GOAL: Verify the full path: discover by name, connect, command, and receive a pushed value
	//
	// TEST SCENARIO: Controller advertising among other devices → connect by name → tagged command delivered → push reaches listener

	transport, char := suite.controller()
	session := suite.newSession(transport, poslink.Options{ScanTimeout: time.Minute})
	defer session.Close()

	result, err := session.ConnectByName(context.Background(), controllerName)
	suite.Require().NoError(err, "connect by name MUST succeed while the scan window is still open")
	suite.Assert().Equal(controllerAddr, result.Address, "MUST connect to the advertised controller, not the bystander")
	suite.Assert().Greater(result.Services, 0, "capability discovery MUST yield services")
	suite.Assert().Equal(controllerAddr, session.Address(), "session MUST track the connected address")

	received := make(chan []byte, 1)
	remove := session.AddListener(func(value []byte) { received <- value })
	defer remove()
	suite.Require().NoError(session.EnableAutoPush(), "auto-push MUST enable on the firmware characteristic")

	suite.Require().NoError(session.SendCommand(context.Background(), "LED_ON"), "command MUST be written")
	suite.Require().Equal([][]byte{[]byte("Cmd:LED_ON")}, char.Written(), "command MUST carry the Cmd: tag, bare UTF-8, no framing")

	char.Push([]byte("LED:ON"))
	select {
	case value := <-received:
		suite.Assert().Equal([]byte("LED:ON"), value, "pushed value MUST reach the registered listener")
	case <-time.After(2 * time.Second):
		suite.FailNow("pushed value MUST reach the listener within 2s")
	}
}

func (suite *SessionTestSuite) TestConnectByName() {
	// GOAL: Verify name-based discovery outcomes
	//
	// TEST SCENARIO: Known and unknown names → connect or a not-found error after the window closes

	suite.Run("unknown name", func() {
		transport, _ := suite.controller()
		session := suite.newSession(transport, poslink.Options{ScanTimeout: 50 * time.Millisecond})
		defer session.Close()

		_, err := session.ConnectByName(context.Background(), "NoSuchDevice")

		var notFound *device.NotFoundError
		suite.Require().ErrorAs(err, &notFound, "an empty window MUST end in NotFoundError")
		suite.Assert().Equal("device", notFound.Resource, "resource MUST be device")
	})

	suite.Run("empty name rejected", func() {
		transport, _ := suite.controller()
		session := suite.newSession(transport, poslink.Options{})
		defer session.Close()

		_, err := session.ConnectByName(context.Background(), "")

		suite.Assert().Error(err, "empty name MUST be rejected locally")
	})
}

func (suite *SessionTestSuite) TestReadValue() {
	// GOAL: Verify reads target the selected characteristic
	//
	// TEST SCENARIO: Connected session → ReadValue returns the characteristic value

	transport, _ := suite.controller()
	session := suite.newSession(transport, poslink.Options{})
	defer session.Close()

	_, err := session.ConnectByAddress(context.Background(), controllerAddr)
	suite.Require().NoError(err)

	value, err := session.ReadValue(context.Background())
	suite.Require().NoError(err, "read MUST succeed")
	suite.Assert().Equal([]byte("IDLE"), value, "MUST return the characteristic value")
}

func (suite *SessionTestSuite) TestListeners() {
	// GOAL: Verify listener registration and removal
	//
	// TEST SCENARIO: Two listeners registered, one removed → only the remaining one sees the next push

	transport, char := suite.controller()
	session := suite.newSession(transport, poslink.Options{})
	defer session.Close()

	_, err := session.ConnectByAddress(context.Background(), controllerAddr)
	suite.Require().NoError(err)
	suite.Require().NoError(session.EnableAutoPush())

	kept := make(chan []byte, 1)
	dropped := make(chan []byte, 1)
	session.AddListener(func(v []byte) { kept <- v })
	remove := session.AddListener(func(v []byte) { dropped <- v })
	remove()

	char.Push([]byte("TICK"))

	select {
	case v := <-kept:
		suite.Assert().Equal([]byte("TICK"), v, "remaining listener MUST receive the push")
	case <-time.After(2 * time.Second):
		suite.FailNow("remaining listener MUST receive the push")
	}
	select {
	case <-dropped:
		suite.FailNow("a removed listener MUST NOT receive pushes")
	case <-time.After(50 * time.Millisecond):
	}
}

func (suite *SessionTestSuite) TestMTUBestEffort() {
	// GOAL: Verify a failed transfer-unit request never fails the connect
	//
	// TEST SCENARIO: Peripheral rejecting MTU exchange → connect still succeeds

	transport, _ := suite.controller()
	transport.Peripherals[controllerAddr].MTUEr = &device.StackError{Op: "exchange mtu", Code: 133}
	session := suite.newSession(transport, poslink.Options{MTU: 512})
	defer session.Close()

	_, err := session.ConnectByAddress(context.Background(), controllerAddr)

	suite.Assert().NoError(err, "MTU failure MUST NOT fail the connect")
	suite.Assert().True(session.Connected(), "link MUST be up despite the failed MTU request")
}

func (suite *SessionTestSuite) TestClose() {
	// GOAL: Verify close tears down the link and is idempotent
	//
	// TEST SCENARIO: Close after connect → disconnected; second close → still no error

	transport, _ := suite.controller()
	session := suite.newSession(transport, poslink.Options{})

	_, err := session.ConnectByAddress(context.Background(), controllerAddr)
	suite.Require().NoError(err)

	suite.Assert().NoError(session.Close(), "close MUST succeed")
	suite.Assert().False(session.Connected(), "link MUST be down after close")
	suite.Assert().NoError(session.Close(), "repeated close MUST succeed")
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
