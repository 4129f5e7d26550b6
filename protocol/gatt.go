package protocol

// GATT identifiers of the force sensor service. The custom base is
// 6c1bxxxx-4e01-8b6f-9a30-4ab6f2d2937c; the data characteristic notifies
// EncodeNotification payloads.
const (
	FSRServiceUUID  = "6c1b0001-4e01-8b6f-9a30-4ab6f2d2937c"
	FSRDataCharUUID = "6c1b0002-4e01-8b6f-9a30-4ab6f2d2937c"

	// DeviceName is advertised by the board.
	DeviceName = "FSR Insole"
)
