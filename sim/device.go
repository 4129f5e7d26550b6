package sim

import (
	"context"
	"io"
	"time"

	"fsrsense/core"
	"fsrsense/protocol"
)

// Device is the force sensor firmware running on a simulated board: the
// sensor, the serial link and its transport, driven by the same main loop
// the target runs.
type Device struct {
	Board     *Board
	Sensor    *core.Sensor
	Link      *core.Link
	Transport *protocol.Transport

	// Speed scales virtual time against wall time in Serve. Zero means 1.
	Speed float64

	out *protocol.ScratchOutput
	in  *protocol.FifoBuffer
	w   io.Writer
	err error
}

// NewDevice builds the firmware on a fresh board. cfg.Fault is replaced
// by the link's fault reporter.
func NewDevice(cfg core.Config) (*Device, error) {
	d := &Device{
		Board: NewBoard(),
		out:   protocol.NewScratchOutput(),
		in:    protocol.NewFifoBuffer(4 * protocol.MessageLengthMax),
	}
	d.Transport = protocol.NewTransport(d.out, func(id uint16, data *[]byte) error {
		return d.Link.Dispatch(id, data)
	})
	d.Link = core.NewLink(d.Transport)
	cfg.Fault = d.Link.Fault

	s, err := core.NewSensor(d.Board.Hardware(), cfg, d.Link)
	if err != nil {
		return nil, err
	}
	d.Sensor = s
	d.Link.Attach(s)
	d.Transport.SetResetCallback(func() {
		// a host that reconnects starts unsubscribed
		_ = d.Link.Disconnect()
	})
	return d, nil
}

// Receive feeds bytes from the host into the transport.
func (d *Device) Receive(data []byte) {
	for len(data) > 0 {
		if d.in.Free() == 0 {
			d.in.Reset()
		}
		n := d.in.Write(data)
		data = data[n:]
		d.Transport.Receive(d.in)
	}
}

// Step advances the board by dt, running the main loop every
// millisecond and writing everything the firmware sent to w.
func (d *Device) Step(dt time.Duration, w io.Writer) error {
	d.w, d.err = w, nil
	d.Board.Run(dt, time.Millisecond, d.poll)
	if d.err == nil {
		d.err = d.flush()
	}
	return d.err
}

// Serve runs the device against rw until ctx is done or rw fails. Virtual
// time follows wall time in increments of tick.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter, tick time.Duration) error {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	speed := d.Speed
	if speed <= 0 {
		speed = 1
	}
	step := time.Duration(float64(tick) * speed)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rx := make(chan []byte, 8)
	rxErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := rw.Read(buf)
			if n > 0 {
				select {
				case rx <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				rxErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-rxErr:
			if err == io.EOF {
				return nil
			}
			return err
		case data := <-rx:
			d.Receive(data)
			d.w = rw
			if err := d.flush(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := d.Step(step, rw); err != nil {
				return err
			}
		}
	}
}

// poll is one main loop iteration.
func (d *Device) poll() {
	d.Sensor.Poll()
	d.Link.Poll()
	if d.err == nil {
		d.err = d.flush()
	}
}

func (d *Device) flush() error {
	if d.w == nil {
		d.out.Reset()
		return nil
	}
	return d.out.FlushTo(d.w)
}
