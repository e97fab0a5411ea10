// Package decode maps raw PDO frames from the motor controller to named
// signal values. The signal table mirrors the controller's transmit PDO
// layout: each signal is identified by COB-ID and a byte range inside the
// 8-byte payload.
package decode

import (
	"encoding/binary"
)

// SignalType is the wire encoding of a signal.
type SignalType int

const (
	U16 SignalType = iota // unsigned 16-bit, big-endian
	S16                   // signed 16-bit, big-endian
	U8                    // unsigned byte
	U4                    // low nibble of a byte
)

func (t SignalType) String() string {
	switch t {
	case U16:
		return "U16"
	case S16:
		return "S16"
	case U8:
		return "U8"
	case U4:
		return "U4"
	default:
		return "UNKNOWN"
	}
}

// Signal describes one field of a transmit PDO.
type Signal struct {
	FrameID     uint32
	Start       int
	End         int
	Type        SignalType
	Description string
	Range       string
	Units       string
}

// Width returns the number of payload bytes the signal occupies.
func (s Signal) Width() int {
	return s.End - s.Start + 1
}

// Frame COB-IDs broadcast by the controller.
const (
	FramePDO1 uint32 = 390
	FramePDO2 uint32 = 646
	FramePDO3 uint32 = 902
	FramePDO4 uint32 = 1158
)

// Signals is the controller's PDO layout, in CSV column order.
var Signals = []Signal{
	{FramePDO1, 0, 1, U16, "Status word", "0-65535", ""},
	{FramePDO1, 2, 3, S16, "Actual speed", "-32768 to 32767", "Rpm"},
	{FramePDO1, 4, 5, U16, "RMS motor Current", "0-65535", "Arms"},
	{FramePDO1, 6, 7, S16, "DC Bus Voltage", "-32768 to 32767", "Adc"},
	{FramePDO2, 0, 1, S16, "Internal Speed Reference", "-32768 to 32767", "Rpm"},
	{FramePDO2, 2, 3, S16, "Reference Torque", "-32768 to 32767", "Nm"},
	{FramePDO2, 4, 5, S16, "Actual Torque", "-32768 to 32767", "Nm"},
	{FramePDO2, 6, 7, S16, "Field weakening control: voltage angle", "-32768 to 32767", "Deg"},
	{FramePDO3, 0, 0, U8, "Field weakening control: regulator status", "0-255", ""},
	{FramePDO3, 1, 1, U4, "Current limit: actual limit type", "0-15", ""},
	{FramePDO3, 2, 3, S16, "Motor voltage control: U peak normalized", "-32768 to 32767", ""},
	{FramePDO3, 4, 5, U16, "Digital status word", "0-65535", ""},
	{FramePDO3, 6, 7, S16, "Scaled throttle percent", "-32768 to 32767", ""},
	{FramePDO4, 0, 1, S16, "Motor voltage control: idLimit", "-32768 to 32767", ""},
	{FramePDO4, 2, 3, S16, "Motor voltage control: Idfiltered", "-32768 to 32767", "Arms"},
	{FramePDO4, 4, 5, S16, "Actual currents: iq", "-32768 to 32767", "Apk"},
	{FramePDO4, 6, 7, S16, "Motor measurements: DC bus current", "-32768 to 32767", "Adc"},
}

var pdoLabels = map[uint32]string{
	FramePDO1: "PDO1",
	FramePDO2: "PDO2",
	FramePDO3: "PDO3",
	FramePDO4: "PDO4",
}

// PDOLabel returns the PDO label for a frame ID.
func PDOLabel(id uint32) string {
	if label, ok := pdoLabels[id]; ok {
		return label
	}
	return "Unknown PDO"
}

// Known reports whether the frame ID carries decodable signals.
func Known(id uint32) bool {
	_, ok := pdoLabels[id]
	return ok
}

// Value is a decoded signal value.
type Value struct {
	Signal Signal
	Raw    int64
}

// Frame decodes every signal of the given frame that fits inside data.
// Signals whose byte range exceeds the payload are skipped; a short frame
// is not an error on this bus, just an incomplete broadcast.
func Frame(id uint32, data []byte) []Value {
	var values []Value
	for _, sig := range Signals {
		if sig.FrameID != id {
			continue
		}
		if sig.End >= len(data) {
			continue
		}

		var raw int64
		switch sig.Type {
		case U16:
			raw = int64(binary.BigEndian.Uint16(data[sig.Start : sig.End+1]))
		case S16:
			raw = int64(int16(binary.BigEndian.Uint16(data[sig.Start : sig.End+1])))
		case U8:
			raw = int64(data[sig.Start])
		case U4:
			raw = int64(data[sig.Start] & 0x0F)
		}

		values = append(values, Value{Signal: sig, Raw: raw})
	}
	return values
}

// BusVoltage extracts the DC bus voltage used for power detection. The
// controller reports it little-endian in bytes 6-7 of PDO1, unlike the
// big-endian encoding of the PDO signal table.
func BusVoltage(id uint32, data []byte) (int16, bool) {
	if id != FramePDO1 || len(data) < 8 {
		return 0, false
	}
	return int16(binary.LittleEndian.Uint16(data[6:8])), true
}

// ColumnHeaders returns the CSV headers for decoded rows: frame metadata
// followed by one column per signal description, in table order.
func ColumnHeaders() []string {
	headers := []string{"Trial Number", "Timestamp", "Message ID", "PDO Label", "DLC", "Flags"}
	seen := make(map[string]bool)
	for _, sig := range Signals {
		if seen[sig.Description] {
			continue
		}
		seen[sig.Description] = true
		headers = append(headers, sig.Description)
	}
	return headers
}
