package core

// Subscriber is one source of interest in the result stream.
type Subscriber uint8

const (
	// SubscriberSerial is the host on the framed serial link.
	SubscriberSerial Subscriber = 1 << iota
	// SubscriberBLE is a connected BLE central.
	SubscriberBLE
)

func (s Subscriber) String() string {
	switch s {
	case SubscriberSerial:
		return "serial"
	case SubscriberBLE:
		return "ble"
	}
	return "subscriber(" + utoa(uint32(s)) + ")"
}

// Subscriptions runs the sensor while at least one subscriber wants
// results: the first Subscribe starts it and the last Unsubscribe stops
// it. Main loop only.
type Subscriptions struct {
	sensor *Sensor
	active Subscriber
}

// NewSubscriptions returns an empty set for s.
func NewSubscriptions(s *Sensor) *Subscriptions {
	return &Subscriptions{sensor: s}
}

// Subscribe adds who and makes sure the sensor is sampling. A sensor that
// cannot start leaves who unsubscribed.
func (m *Subscriptions) Subscribe(who Subscriber) error {
	if err := m.sensor.Start(); err != nil {
		return err
	}
	m.active |= who
	return nil
}

// Unsubscribe removes who. The sensor is stopped when nobody is left;
// removing a source that never subscribed does nothing.
func (m *Subscriptions) Unsubscribe(who Subscriber) error {
	if m.active&who == 0 {
		return nil
	}
	m.active &^= who
	if m.active != 0 {
		return nil
	}
	return m.sensor.Stop()
}

// Active reports the current subscribers.
func (m *Subscriptions) Active() Subscriber {
	return m.active
}

// Has reports whether who is subscribed.
func (m *Subscriptions) Has(who Subscriber) bool {
	return m.active&who != 0
}
