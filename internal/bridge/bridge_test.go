package bridge_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/attunepos/poslink/internal/bridge"
	"github.com/attunepos/poslink/internal/device"
	"github.com/attunepos/poslink/internal/platform"
	"github.com/attunepos/poslink/internal/testutils"
)

const testAddr = "aa:bb:cc:dd:ee:01"

type BridgeTestSuite struct {
	suite.Suite
	logger *logrus.Logger
}

func (suite *BridgeTestSuite) SetupSuite() {
	suite.logger = logrus.New()
	suite.logger.SetOutput(io.Discard)
}

func (suite *BridgeTestSuite) newBridge(t *testutils.FakeTransport, a platform.Authority) *bridge.Bridge {
	if a == nil {
		a = platform.AllGranted(platform.GenerationModern)
	}
	return bridge.New(t, a, suite.logger)
}

// terminal builds the standard test peripheral: one service with a
// readable/writable/notifiable characteristic.
func (suite *BridgeTestSuite) terminal() (*testutils.FakePeripheral, *testutils.FakeCharacteristic) {
	char := &testutils.FakeCharacteristic{
		ID:        "beb54830",
		Props:     device.PropRead | device.PropWrite | device.PropNotify,
		ReadValue: []byte("READY"),
	}
	svc := &testutils.FakeService{ID: "4fafc201", Chars: []*testutils.FakeCharacteristic{char}}
	return testutils.NewFakePeripheral(testAddr, svc), char
}

func (suite *BridgeTestSuite) waitEvent(events <-chan bridge.Event, want bridge.EventType) bridge.Event {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			suite.FailNowf("timeout", "MUST receive %s event within 2s", want)
			return bridge.Event{}
		}
	}
}

func (suite *BridgeTestSuite) TestScan() {
	// GOAL: Verify scan windows deduplicate, filter, and report results deterministically
	//
	// TEST SCENARIO: Repeated advertisements from multiple devices → one entry per address → sorted result set

	suite.Run("deduplicates by address", func() {
		transport := &testutils.FakeTransport{
			Advertisements: []*testutils.FakeAdvertisement{
				{Address: "aa:bb:cc:dd:ee:02", Name: "POS-2", Rssi: -60},
				{Address: "aa:bb:cc:dd:ee:01", Name: "POS-1", Rssi: -40},
			},
			Repeats: 3,
		}
		b := suite.newBridge(transport, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		results, err := b.Scan(ctx, bridge.ScanOptions{Timeout: 50 * time.Millisecond})

		suite.Assert().NoError(err, "scan window ending by timeout MUST NOT be an error")
		suite.Assert().Len(results, 2, "repeated advertisements MUST collapse to one entry per address")
		suite.Assert().Equal("aa:bb:cc:dd:ee:01", results[0].Address, "results MUST be sorted by address")
		suite.Assert().Equal("aa:bb:cc:dd:ee:02", results[1].Address, "results MUST be sorted by address")
		suite.Assert().Equal("POS-1", results[0].Name, "advertised name MUST be captured")
		suite.Assert().Equal(-40, results[0].RSSI, "RSSI MUST be captured")
	})

	suite.Run("emits device found once per address", func() {
		transport := &testutils.FakeTransport{
			Advertisements: []*testutils.FakeAdvertisement{
				{Address: testAddr, Name: "POS-1"},
			},
			Repeats: 5,
		}
		b := suite.newBridge(transport, nil)
		events := b.Events()

		_, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 50 * time.Millisecond})
		suite.Require().NoError(err)

		ev := suite.waitEvent(events, bridge.EventDeviceFound)
		suite.Assert().Equal(testAddr, ev.Device.Address, "event MUST carry the discovered address")

		select {
		case extra := <-events:
			suite.Assert().NotEqual(bridge.EventDeviceFound, extra.Type,
				"a re-sighted address MUST NOT emit a second device-found event")
		default:
		}
	})

	suite.Run("filters by advertised name", func() {
		transport := &testutils.FakeTransport{
			Advertisements: []*testutils.FakeAdvertisement{
				{Address: "aa:bb:cc:dd:ee:01", Name: "POS-1"},
				{Address: "aa:bb:cc:dd:ee:02", Name: "OTHER"},
			},
		}
		b := suite.newBridge(transport, nil)

		results, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 50 * time.Millisecond, Name: "POS-1"})

		suite.Assert().NoError(err)
		suite.Assert().Len(results, 1, "name filter MUST drop non-matching devices")
		suite.Assert().Equal("POS-1", results[0].Name)
	})

	suite.Run("discards previous window results", func() {
		transport := &testutils.FakeTransport{
			Advertisements: []*testutils.FakeAdvertisement{
				{Address: "aa:bb:cc:dd:ee:01", Name: "POS-1"},
			},
		}
		b := suite.newBridge(transport, nil)

		first, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 20 * time.Millisecond})
		suite.Require().NoError(err)
		suite.Require().Len(first, 1)

		transport.Advertisements = nil
		second, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 20 * time.Millisecond})

		suite.Assert().NoError(err)
		suite.Assert().Empty(second, "a new window MUST NOT carry over results from the previous one")
	})
}

func (suite *BridgeTestSuite) TestScanGating() {
	// GOAL: Verify scans are blocked by missing permissions, a disabled adapter, and a scan already in flight
	//
	// TEST SCENARIO: Each precondition violated in turn → operation rejected with its specific error type

	suite.Run("modern stack missing connect grant", func() {
		authority := &platform.StaticAuthority{
			Gen:     platform.GenerationModern,
			Grants:  []platform.Permission{platform.PermScan},
			Powered: true,
		}
		b := suite.newBridge(&testutils.FakeTransport{}, authority)

		_, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 10 * time.Millisecond})

		var permErr *device.PermissionError
		suite.Assert().ErrorAs(err, &permErr, "error MUST be PermissionError")
		suite.Assert().Equal([]string{"bluetooth-connect"}, permErr.Missing, "MUST name exactly the missing grant")
	})

	suite.Run("legacy stack accepts coarse grant", func() {
		authority := &platform.StaticAuthority{
			Gen:     platform.GenerationLegacy,
			Grants:  []platform.Permission{platform.PermDiscovery},
			Powered: true,
		}
		b := suite.newBridge(&testutils.FakeTransport{}, authority)

		_, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 10 * time.Millisecond})

		suite.Assert().NoError(err, "legacy coarse grant MUST be sufficient without modern grants")
	})

	suite.Run("adapter off", func() {
		authority := platform.AllGranted(platform.GenerationModern)
		authority.Powered = false
		b := suite.newBridge(&testutils.FakeTransport{}, authority)

		_, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 10 * time.Millisecond})

		suite.Assert().ErrorIs(err, device.ErrAdapterDisabled, "MUST reject when the adapter is powered off")
	})

	suite.Run("second scan while one is running", func() {
		transport := &testutils.FakeTransport{ScanStarted: make(chan struct{})}
		b := suite.newBridge(transport, nil)

		done := make(chan error, 1)
		go func() {
			_, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: time.Minute})
			done <- err
		}()
		<-transport.ScanStarted

		_, err := b.Scan(context.Background(), bridge.ScanOptions{Timeout: 10 * time.Millisecond})
		var inProgress *device.InProgressError
		suite.Assert().ErrorAs(err, &inProgress, "overlapping scan MUST be rejected with InProgressError")
		suite.Assert().Equal("scan", inProgress.Category, "category MUST be scan")

		b.StopScan()
		suite.Assert().NoError(<-done, "the original scan MUST finish normally after StopScan")
	})
}

func (suite *BridgeTestSuite) TestStopScan() {
	// GOAL: Verify StopScan ends the window early and hands back the partial results
	//
	// TEST SCENARIO: Scan running with long timeout → StopScan called → scan returns promptly with collected devices

	transport := &testutils.FakeTransport{
		Advertisements: []*testutils.FakeAdvertisement{
			{Address: testAddr, Name: "POS-1"},
		},
	}
	b := suite.newBridge(transport, nil)

	done := make(chan []bridge.DiscoveredDevice, 1)
	go func() {
		results, _ := b.Scan(context.Background(), bridge.ScanOptions{Timeout: time.Minute})
		done <- results
	}()

	var partial []bridge.DiscoveredDevice
	suite.Require().Eventually(func() bool {
		partial = b.StopScan()
		return len(partial) == 1
	}, 2*time.Second, 5*time.Millisecond, "StopScan MUST return devices seen so far")

	select {
	case results := <-done:
		suite.Assert().Len(results, 1, "the stopped scan MUST still return its results")
	case <-time.After(2 * time.Second):
		suite.FailNow("scan MUST return promptly after StopScan")
	}

	suite.Assert().NotPanics(func() { b.StopScan() }, "StopScan without a running scan MUST be a no-op")
}

func (suite *BridgeTestSuite) TestConnect() {
	// GOAL: Verify connect dials, discovers capabilities, and enforces the single-connection rule
	//
	// TEST SCENARIO: Connect to a known peripheral → result carries address and service count → duplicates rejected

	suite.Run("successful connect reports discovery", func() {
		peripheral, _ := suite.terminal()
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)

		result, err := b.Connect(context.Background(), testAddr)

		suite.Require().NoError(err, "connect MUST succeed")
		suite.Assert().Equal(testAddr, result.Address, "result MUST carry the device address")
		suite.Assert().Equal(1, result.Services, "result MUST carry the discovered service count")
		suite.Assert().True(b.Connected(), "bridge MUST report connected")
		suite.Assert().Equal([]string{testAddr}, transport.Dials(), "exactly one dial MUST have happened")
	})

	suite.Run("rejects empty address", func() {
		b := suite.newBridge(&testutils.FakeTransport{}, nil)

		_, err := b.Connect(context.Background(), "")

		suite.Assert().Error(err, "empty address MUST be rejected")
	})

	suite.Run("rejects while already connected", func() {
		peripheral, _ := suite.terminal()
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)

		_, err := b.Connect(context.Background(), testAddr)
		suite.Require().NoError(err)

		_, err = b.Connect(context.Background(), testAddr)
		suite.Assert().ErrorIs(err, device.ErrAlreadyConnected, "a second connect MUST be rejected")
	})

	suite.Run("rejects overlapping connect attempts", func() {
		peripheral, _ := suite.terminal()
		transport := &testutils.FakeTransport{
			Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral},
			DialStarted: make(chan struct{}),
			DialHold:    make(chan struct{}),
		}
		b := suite.newBridge(transport, nil)

		done := make(chan error, 1)
		go func() {
			_, err := b.Connect(context.Background(), testAddr)
			done <- err
		}()
		<-transport.DialStarted

		_, err := b.Connect(context.Background(), testAddr)
		var inProgress *device.InProgressError
		suite.Assert().ErrorAs(err, &inProgress, "overlapping connect MUST be rejected with InProgressError")
		suite.Assert().Equal("connect", inProgress.Category, "category MUST be connect")

		close(transport.DialHold)
		suite.Assert().NoError(<-done, "the first connect MUST be unaffected by the rejected one")
	})

	suite.Run("dial failure leaves bridge disconnected", func() {
		transport := &testutils.FakeTransport{DialErr: errors.New("ATT timeout")}
		b := suite.newBridge(transport, nil)

		_, err := b.Connect(context.Background(), testAddr)

		suite.Assert().Error(err, "dial failure MUST surface")
		suite.Assert().False(b.Connected(), "a failed connect MUST NOT leave a half-open state")

		// Slot must be free again.
		_, err = b.Connect(context.Background(), testAddr)
		var inProgress *device.InProgressError
		suite.Assert().False(errors.As(err, &inProgress), "connect slot MUST be released after a failure")
	})
}

func (suite *BridgeTestSuite) TestDisconnect() {
	// GOAL: Verify disconnect is idempotent and always tears the link down
	//
	// TEST SCENARIO: Disconnect with and without an active link → no error either way → disconnected event emitted once

	suite.Run("without active connection", func() {
		b := suite.newBridge(&testutils.FakeTransport{}, nil)

		suite.Assert().NoError(b.Disconnect(), "disconnect with no link MUST succeed")
		suite.Assert().NoError(b.Disconnect(), "repeated disconnect MUST succeed")
	})

	suite.Run("tears down active connection", func() {
		peripheral, _ := suite.terminal()
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)
		events := b.Events()

		_, err := b.Connect(context.Background(), testAddr)
		suite.Require().NoError(err)

		suite.Assert().NoError(b.Disconnect(), "disconnect MUST succeed")
		suite.Assert().False(b.Connected(), "bridge MUST report disconnected")
		suite.waitEvent(events, bridge.EventDisconnected)

		suite.Assert().NoError(b.Disconnect(), "disconnect after disconnect MUST still succeed")
	})
}

func (suite *BridgeTestSuite) TestRemoteDrop() {
	// GOAL: Verify a remote-initiated link drop is observed and surfaced
	//
	// TEST SCENARIO: Peripheral drops the link → disconnected event emitted → subsequent operations fail as not connected

	peripheral, _ := suite.terminal()
	transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
	b := suite.newBridge(transport, nil)
	events := b.Events()

	_, err := b.Connect(context.Background(), testAddr)
	suite.Require().NoError(err)

	peripheral.DropLink()
	suite.waitEvent(events, bridge.EventDisconnected)

	suite.Require().Eventually(func() bool { return !b.Connected() },
		2*time.Second, 5*time.Millisecond, "bridge MUST clear the connection after a remote drop")

	_, err = b.Read(context.Background(), "4fafc201", "beb54830")
	suite.Assert().ErrorIs(err, device.ErrNotConnected, "operations after a drop MUST fail as not connected")
}

func (suite *BridgeTestSuite) TestReadWrite() {
	// GOAL: Verify read/write target resolution, per-category serialization, and cross-category independence
	//
	// TEST SCENARIO: Operations against known and unknown targets → values round-trip → overlaps rejected per category only

	suite.Run("read returns characteristic value", func() {
		peripheral, _ := suite.terminal()
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)
		_, err := b.Connect(context.Background(), testAddr)
		suite.Require().NoError(err)

		value, err := b.Read(context.Background(), "4fafc201", "beb54830")

		suite.Assert().NoError(err, "read MUST succeed")
		suite.Assert().Equal([]byte("READY"), value, "read MUST return the characteristic value")
	})

	suite.Run("write delivers payload", func() {
		peripheral, char := suite.terminal()
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)
		_, err := b.Connect(context.Background(), testAddr)
		suite.Require().NoError(err)

		err = b.Write(context.Background(), "4fafc201", "beb54830", []byte("Cmd:PING"), true)

		suite.Require().NoError(err, "write MUST succeed")
		suite.Assert().Equal([][]byte{[]byte("Cmd:PING")}, char.Written(), "payload MUST reach the characteristic unchanged")
	})

	suite.Run("unknown target fails with not found", func() {
		peripheral, _ := suite.terminal()
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)
		_, err := b.Connect(context.Background(), testAddr)
		suite.Require().NoError(err)

		_, err = b.Read(context.Background(), "ffff", "beb54830")
		var notFound *device.NotFoundError
		suite.Assert().ErrorAs(err, &notFound, "unknown service MUST fail with NotFoundError")
		suite.Assert().Equal("service", notFound.Resource, "resource MUST be service")

		err = b.Write(context.Background(), "4fafc201", "ffff", []byte("x"), false)
		suite.Assert().ErrorAs(err, &notFound, "unknown characteristic MUST fail with NotFoundError")
		suite.Assert().Equal("characteristic", notFound.Resource, "resource MUST be characteristic")
	})

	suite.Run("not connected", func() {
		b := suite.newBridge(&testutils.FakeTransport{}, nil)

		_, err := b.Read(context.Background(), "4fafc201", "beb54830")
		suite.Assert().ErrorIs(err, device.ErrNotConnected, "read without a link MUST fail")

		err = b.Write(context.Background(), "4fafc201", "beb54830", nil, false)
		suite.Assert().ErrorIs(err, device.ErrNotConnected, "write without a link MUST fail")
	})

	suite.Run("overlapping reads rejected, writes unaffected", func() {
		peripheral, char := suite.terminal()
		char.ReadStarted = make(chan struct{})
		char.ReadHold = make(chan struct{})
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)
		_, err := b.Connect(context.Background(), testAddr)
		suite.Require().NoError(err)

		done := make(chan error, 1)
		go func() {
			_, err := b.Read(context.Background(), "4fafc201", "beb54830")
			done <- err
		}()
		<-char.ReadStarted

		_, err = b.Read(context.Background(), "4fafc201", "beb54830")
		var inProgress *device.InProgressError
		suite.Assert().ErrorAs(err, &inProgress, "overlapping read MUST be rejected")
		suite.Assert().Equal("read", inProgress.Category, "category MUST be read")

		err = b.Write(context.Background(), "4fafc201", "beb54830", []byte("Cmd:STATUS"), true)
		suite.Assert().NoError(err, "a write MUST NOT be blocked by a pending read")

		close(char.ReadHold)
		suite.Assert().NoError(<-done, "the pending read MUST complete unaffected")
	})
}

func (suite *BridgeTestSuite) TestNotifications() {
	// GOAL: Verify subscriptions turn peripheral pushes into value-changed events
	//
	// TEST SCENARIO: Enable notifications → peripheral pushes values → events carry the characteristic UUID and payload

	suite.Run("pushes become events", func() {
		peripheral, char := suite.terminal()
		transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
		b := suite.newBridge(transport, nil)
		events := b.Events()
		_, err := b.Connect(context.Background(), testAddr)
		suite.Require().NoError(err)

		suite.Require().NoError(b.EnableNotifications("4fafc201", "beb54830"), "subscribe MUST succeed")

		buf := []byte("TXN:OK")
		char.Push(buf)
		ev := suite.waitEvent(events, bridge.EventValueChanged)

		suite.Assert().Equal("beb54830", ev.CharUUID, "event MUST carry the normalized characteristic UUID")
		suite.Assert().Equal([]byte("TXN:OK"), ev.Value, "event MUST carry the pushed value")

		buf[0] = 'X'
		suite.Assert().Equal([]byte("TXN:OK"), ev.Value, "event value MUST be a copy, immune to buffer reuse")
	})

	suite.Run("not connected", func() {
		b := suite.newBridge(&testutils.FakeTransport{}, nil)

		err := b.EnableNotifications("4fafc201", "beb54830")
		suite.Assert().ErrorIs(err, device.ErrNotConnected, "subscribe without a link MUST fail")
	})
}

func (suite *BridgeTestSuite) TestRequestMTU() {
	// GOAL: Verify MTU requests are bounded and best-effort
	//
	// TEST SCENARIO: Requests inside and outside the valid range → out-of-range rejected locally → granted value returned

	peripheral, _ := suite.terminal()
	peripheral.MTU = 185
	transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
	b := suite.newBridge(transport, nil)
	_, err := b.Connect(context.Background(), testAddr)
	suite.Require().NoError(err)

	suite.Run("out of range rejected", func() {
		_, err := b.RequestMTU(22)
		suite.Assert().Error(err, "MTU below 23 MUST be rejected")

		_, err = b.RequestMTU(518)
		suite.Assert().Error(err, "MTU above 517 MUST be rejected")
	})

	suite.Run("peripheral may grant less", func() {
		granted, err := b.RequestMTU(512)
		suite.Assert().NoError(err, "request MUST succeed")
		suite.Assert().Equal(185, granted, "granted value MUST come from the peripheral")
	})

	suite.Run("not connected", func() {
		b := suite.newBridge(&testutils.FakeTransport{}, nil)
		_, err := b.RequestMTU(247)
		suite.Assert().ErrorIs(err, device.ErrNotConnected, "MTU request without a link MUST fail")
	})
}

func (suite *BridgeTestSuite) TestServices() {
	// GOAL: Verify the capability snapshot is exposed after connect
	//
	// TEST SCENARIO: Connect → Services() returns the discovered tree → disconnect → Services() fails

	peripheral, _ := suite.terminal()
	transport := &testutils.FakeTransport{Peripherals: map[string]*testutils.FakePeripheral{testAddr: peripheral}}
	b := suite.newBridge(transport, nil)

	_, err := b.Services()
	suite.Assert().ErrorIs(err, device.ErrNotConnected, "services without a link MUST fail")

	_, err = b.Connect(context.Background(), testAddr)
	suite.Require().NoError(err)

	svcs, err := b.Services()
	suite.Require().NoError(err, "services MUST be available after connect")
	suite.Require().Len(svcs, 1)
	suite.Assert().Equal("4fafc201", svcs[0].UUID(), "service UUID MUST match the discovered tree")
	suite.Require().Len(svcs[0].Characteristics(), 1)
	suite.Assert().True(svcs[0].Characteristics()[0].Properties().CanNotify(), "properties MUST survive the snapshot")
}

func TestBridgeTestSuite(t *testing.T) {
	suite.Run(t, new(BridgeTestSuite))
}
