//go:build nrf52 || nrf52840

package main

import (
	"device/nrf"
	"runtime/interrupt"
	"unsafe"

	"fsrsense/core"
)

const (
	timerPrescaler1MHz = 4 // 16 MHz / 2^4
	timerBitmode32     = 3
	timerCompares      = 4
	timerIntCompare0   = 1 << 16
)

// TimerDriver runs TIMER1 at 1 MHz in timer mode.
type TimerDriver struct {
	handler   func(core.CompareChannel)
	interrupt [timerCompares]bool
}

var timer1 = &TimerDriver{}

func (t *TimerDriver) Init(handler func(core.CompareChannel)) error {
	t.handler = handler

	nrf.TIMER1.TASKS_STOP.Set(1)
	nrf.TIMER1.TASKS_CLEAR.Set(1)
	nrf.TIMER1.MODE.Set(0)
	nrf.TIMER1.BITMODE.Set(timerBitmode32)
	nrf.TIMER1.PRESCALER.Set(timerPrescaler1MHz)
	nrf.TIMER1.SHORTS.Set(0)
	nrf.TIMER1.INTENCLR.Set(0xFFFFFFFF)

	intr := interrupt.New(nrf.IRQ_TIMER1, timer1IRQ)
	intr.SetPriority(0x80)
	intr.Enable()
	return nil
}

func (t *TimerDriver) MsToTicks(ms uint32) uint32 {
	return ms * 1000
}

func (t *TimerDriver) Compare(ch core.CompareChannel, ticks uint32, irq bool) {
	t.ExtendedCompare(ch, ticks, false, irq)
}

func (t *TimerDriver) ExtendedCompare(ch core.CompareChannel, ticks uint32, clear bool, irq bool) {
	if ch >= timerCompares {
		return
	}
	nrf.TIMER1.CC[ch].Set(ticks)
	if clear {
		nrf.TIMER1.SHORTS.SetBits(1 << ch)
	} else {
		nrf.TIMER1.SHORTS.ClearBits(1 << ch)
	}
	t.interrupt[ch] = irq
	if irq {
		nrf.TIMER1.INTENSET.Set(timerIntCompare0 << ch)
	} else {
		nrf.TIMER1.INTENCLR.Set(timerIntCompare0 << ch)
	}
}

func (t *TimerDriver) CompareEvent(ch core.CompareChannel) core.Endpoint {
	return core.Endpoint(uintptr(unsafe.Pointer(&nrf.TIMER1.EVENTS_COMPARE[ch])))
}

// Enable restarts the period from zero.
func (t *TimerDriver) Enable() {
	nrf.TIMER1.TASKS_CLEAR.Set(1)
	nrf.TIMER1.TASKS_START.Set(1)
}

func (t *TimerDriver) Disable() {
	nrf.TIMER1.TASKS_STOP.Set(1)
}

func timer1IRQ(interrupt.Interrupt) {
	for ch := core.CompareChannel(0); ch < timerCompares; ch++ {
		if nrf.TIMER1.EVENTS_COMPARE[ch].Get() == 0 {
			continue
		}
		nrf.TIMER1.EVENTS_COMPARE[ch].Set(0)
		if timer1.interrupt[ch] && timer1.handler != nil {
			timer1.handler(ch)
		}
	}
}
