package main

import (
	logger "github.com/sirupsen/logrus"

	"fsrsense/host/link"
)

// logSubscriber logs everything the board sends.
type logSubscriber struct{}

func (logSubscriber) OnReading(r link.Reading) {
	logger.WithField("seq", r.Seq).Infof("Reading %v mV", r.MilliVolts)
}

func (logSubscriber) OnStatus(st link.Status) {
	logger.WithFields(logger.Fields{
		"state":        st.State.String(),
		"samples":      st.Samples,
		"calibrations": st.Calibrations,
		"dropped":      st.Dropped,
		"overwritten":  st.Overwritten,
		"spurious":     st.Spurious,
	}).Debug("Status")
}

func (logSubscriber) OnFault(f link.Fault) {
	logger.Errorf("Board fault [%s]", f.Reason)
}
