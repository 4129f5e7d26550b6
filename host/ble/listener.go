// Package ble subscribes to the board's force sensor GATT service.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"fsrsense/host/link"
	"fsrsense/protocol"
)

var ErrNotFound = errors.New("no force sensor board found")

var (
	serviceUUID  = mustParseUUID(protocol.FSRServiceUUID)
	dataCharUUID = mustParseUUID(protocol.FSRDataCharUUID)
)

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Listener receives the board's notifications and hands them to the
// subscribers as readings. The board starts sampling when notifications
// are enabled and stops when they are disabled or the link drops.
type Listener struct {
	disconnect func() error
	data       bluetooth.DeviceCharacteristic

	notifications *Notifications
}

// Find scans until a board advertising the force sensor service (and,
// when address is set, with that address) is seen.
func Find(ctx context.Context, adapter *bluetooth.Adapter, address string) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		<-ctx.Done()
		_ = adapter.StopScan()
	}()
	err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !Matches(result.Address.String(), result.HasServiceUUID(serviceUUID), result.LocalName(), address) {
			return
		}
		select {
		case found <- result:
		default:
		}
		_ = a.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	}
	select {
	case r := <-found:
		return r, nil
	default:
		return bluetooth.ScanResult{}, ErrNotFound
	}
}

// Matches reports whether an advertisement belongs to the wanted board.
func Matches(addr string, hasService bool, name, want string) bool {
	if want != "" {
		return strings.EqualFold(addr, want)
	}
	return hasService || name == protocol.DeviceName
}

// Listen connects to the board found by Find and enables notifications.
func Listen(ctx context.Context, adapter *bluetooth.Adapter, address string, scanTimeout time.Duration) (*Listener, error) {
	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()
	result, err := Find(scanCtx, adapter, address)
	if err != nil {
		return nil, err
	}
	logger.Infof("Found %s [%s] rssi %d", result.LocalName(), result.Address.String(), result.RSSI)

	dev, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", result.Address.String(), err)
	}
	l := &Listener{
		disconnect:    dev.Disconnect,
		notifications: NewNotifications(),
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		_ = l.disconnect()
		return nil, fmt.Errorf("failed to get force sensor service: %w", errOrMissing(err))
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{dataCharUUID})
	if err != nil || len(chars) == 0 {
		_ = l.disconnect()
		return nil, fmt.Errorf("failed to get force sensor data characteristic: %w", errOrMissing(err))
	}
	l.data = chars[0]

	if err := l.data.EnableNotifications(l.notifications.Handle); err != nil {
		_ = l.disconnect()
		return nil, fmt.Errorf("enable notifications: %w", err)
	}
	return l, nil
}

func errOrMissing(err error) error {
	if err != nil {
		return err
	}
	return ErrNotFound
}

// Subscribe adds a subscriber for every later notification.
func (l *Listener) Subscribe(s link.Subscriber) {
	l.notifications.Subscribe(s)
}

// Close disables notifications, which stops sampling, and disconnects.
func (l *Listener) Close() error {
	_ = l.data.EnableNotifications(nil)
	return l.disconnect()
}

// Notifications turns raw characteristic notifications into readings.
// BLE carries no sequence number, so readings are numbered on arrival.
type Notifications struct {
	mu          sync.Mutex
	seq         uint32
	subscribers []link.Subscriber
	malformed   uint32
}

func NewNotifications() *Notifications {
	return &Notifications{}
}

// Subscribe adds s.
func (n *Notifications) Subscribe(s link.Subscriber) {
	n.mu.Lock()
	n.subscribers = append(n.subscribers, s)
	n.mu.Unlock()
}

// Handle is the notification callback.
func (n *Notifications) Handle(buf []byte) {
	values, err := protocol.DecodeNotification(buf)
	n.mu.Lock()
	if err != nil || len(values) == 0 {
		n.malformed++
		n.mu.Unlock()
		return
	}
	n.seq++
	r := link.Reading{Seq: n.seq, MilliVolts: values, Received: time.Now()}
	subs := n.subscribers
	n.mu.Unlock()

	for _, s := range subs {
		s.OnReading(r)
	}
}

// Malformed counts notifications that were not a whole number of values.
func (n *Notifications) Malformed() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.malformed
}
