package protocol

// Message IDs of the force sensor link. The table is fixed so a host can
// talk to the firmware without fetching the dictionary first; identify is
// still served for tooling that wants it.
const (
	MsgIdentifyResponse uint16 = 0
	MsgIdentify         uint16 = 1
	MsgSampleBegin      uint16 = 2
	MsgSampleEnd        uint16 = 3
	MsgGetStatus        uint16 = 4

	MsgFSRState  uint16 = 16
	MsgFSRStatus uint16 = 17
	MsgFSRFault  uint16 = 18
)

// MessageFormat describes one message for the dictionary.
type MessageFormat struct {
	ID     uint16
	Name   string
	Format string
	// Response is set for device-to-host messages.
	Response bool
}

// Messages lists every link message in ID order.
var Messages = []MessageFormat{
	{MsgIdentifyResponse, "identify_response", "offset=%u data=%*s", true},
	{MsgIdentify, "identify", "offset=%u count=%c", false},
	{MsgSampleBegin, "sample_begin", "", false},
	{MsgSampleEnd, "sample_end", "", false},
	{MsgGetStatus, "get_status", "", false},
	{MsgFSRState, "fsr_state", "seq=%u values=%*s", true},
	{MsgFSRStatus, "fsr_status", "state=%c samples=%u calibrations=%u dropped=%u overwritten=%u spurious=%u", true},
	{MsgFSRFault, "fsr_fault", "reason=%*s", true},
}

// LookupMessage returns the format of id.
func LookupMessage(id uint16) (MessageFormat, bool) {
	for _, m := range Messages {
		if m.ID == id {
			return m, true
		}
	}
	return MessageFormat{}, false
}
