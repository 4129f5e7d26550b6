//go:build nrf52 || nrf52840

// Force sensor firmware for the nRF52 insole board: two FSRs on AIN5 and
// AIN7 sampled once a second by TIMER1 -> PPI -> SAADC, streamed over BLE
// and over the UART link.
package main

import (
	"device/arm"
	"machine"
	"time"

	"fsrsense/core"
	"fsrsense/protocol"
)

// debug routes core debug output to the UART. It shares the wire with the
// framed link, so only enable it with no host attached.
const debug = false

const uartBaud = 115200

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	link         *core.Link
	sensor       *core.Sensor

	uartErrors uint32
)

func main() {
	uart := machine.Serial
	uart.Configure(machine.UARTConfig{BaudRate: uartBaud})

	if debug {
		core.SetDebugWriter(func(s string) { println(s) })
		core.SetDebugEnabled(true)
		core.InitAsyncDebug()
	}

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, handleCommand)
	link = core.NewLink(transport)

	// ACKs go out at once, ahead of the main loop flush
	transport.SetFlushCallback(func() {
		flushUART(uart)
	})

	cfg := core.DefaultConfig()
	cfg.Fault = link.Fault
	cfg.Trace = debug

	hw := core.Hardware{
		ADC:         saadc,
		Timer:       timer1,
		PPI:         ppi,
		GPIO:        gpio,
		DelayMicros: delayMicros,
	}
	var err error
	sensor, err = core.NewSensor(hw, cfg, fanout{link, notifier})
	if err != nil {
		halt("sensor init: " + err.Error())
	}
	link.Attach(sensor)

	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		_ = link.Disconnect()
	})

	if err := notifier.init(len(cfg.Channels)); err != nil {
		halt("ble init: " + err.Error())
	}

	for {
		readUART(uart)
		if inputBuffer.Available() > 0 {
			transport.Receive(inputBuffer)
		}

		notifier.poll(link.Subscriptions())
		sensor.Poll()
		link.Poll()
		flushUART(uart)

		time.Sleep(time.Millisecond)
	}
}

func handleCommand(cmdID uint16, data *[]byte) error {
	return link.Dispatch(cmdID, data)
}

func readUART(uart *machine.UART) {
	for uart.Buffered() > 0 {
		b, err := uart.ReadByte()
		if err != nil {
			uartErrors++
			return
		}
		if inputBuffer.Write([]byte{b}) == 0 {
			uartErrors++
			return
		}
	}
}

func flushUART(uart *machine.UART) {
	if err := outputBuffer.FlushTo(uart); err != nil {
		uartErrors++
	}
}

// delayMicros busy-waits; it runs in the SAADC interrupt.
func delayMicros(us uint32) {
	for i := us * 16; i > 0; i-- {
		arm.Asm("nop")
	}
}

// halt stops on an init failure. There is nothing safe to run.
func halt(msg string) {
	core.DebugPrintln("[FATAL] " + msg)
	if sensor != nil {
		sensor.Trace().Dump()
	}
	for {
		time.Sleep(time.Second)
	}
}
