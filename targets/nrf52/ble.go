//go:build nrf52 || nrf52840

package main

import (
	"sync/atomic"

	"tinygo.org/x/bluetooth"

	"fsrsense/core"
	"fsrsense/protocol"
)

var adapter = bluetooth.DefaultAdapter

// bleNotifier streams results over the force sensor GATT service. A
// central connecting subscribes; sampling runs while it or the serial
// host is subscribed.
type bleNotifier struct {
	data bluetooth.Characteristic
	adv  *bluetooth.Advertisement

	connected atomic.Bool
	changed   atomic.Bool

	payload      []byte
	notifyErrors uint32
}

var notifier = &bleNotifier{}

func (n *bleNotifier) init(channels int) error {
	serviceUUID, err := bluetooth.ParseUUID(protocol.FSRServiceUUID)
	if err != nil {
		return err
	}
	dataUUID, err := bluetooth.ParseUUID(protocol.FSRDataCharUUID)
	if err != nil {
		return err
	}
	n.payload = make([]byte, 0, protocol.NotificationSize(channels))

	// runs in SoftDevice event context: only record the transition
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		n.connected.Store(connected)
		n.changed.Store(true)
	})
	if err := adapter.Enable(); err != nil {
		return err
	}
	err = adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &n.data,
				UUID:   dataUUID,
				Value:  make([]byte, protocol.NotificationSize(channels)),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return err
	}

	n.adv = adapter.DefaultAdvertisement()
	err = n.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    protocol.DeviceName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	})
	if err != nil {
		return err
	}
	return n.adv.Start()
}

// poll applies a connection change to the subscriptions. Main loop only.
func (n *bleNotifier) poll(subs *core.Subscriptions) {
	if !n.changed.Swap(false) {
		return
	}
	if n.connected.Load() {
		if err := subs.Subscribe(core.SubscriberBLE); err != nil {
			core.DebugPrintln("[BLE] start failed: " + err.Error())
			return
		}
		core.DebugPrintln("[BLE] central connected, sampling")
		return
	}
	if err := subs.Unsubscribe(core.SubscriberBLE); err != nil {
		core.DebugPrintln("[BLE] stop failed: " + err.Error())
	}
	core.DebugPrintln("[BLE] central gone")
	// the stack stops advertising on connect
	_ = n.adv.Start()
}

// Deliver notifies the connected central.
func (n *bleNotifier) Deliver(milliVolts []int16) {
	if !n.connected.Load() {
		return
	}
	n.payload = protocol.EncodeNotification(n.payload[:0], milliVolts)
	if _, err := n.data.Write(n.payload); err != nil {
		n.notifyErrors++
	}
}

// fanout hands every result to each handler in turn.
type fanout []core.ResultHandler

func (f fanout) Deliver(milliVolts []int16) {
	for _, h := range f {
		h.Deliver(milliVolts)
	}
}
