package decode

import (
	"testing"
)

func TestFrameDecodesPDO1(t *testing.T) {
	// Status word 0x0102, speed -2 (0xFFFE), current 0x0304, voltage 0x0506
	data := []byte{0x01, 0x02, 0xFF, 0xFE, 0x03, 0x04, 0x05, 0x06}

	values := Frame(FramePDO1, data)
	if len(values) != 4 {
		t.Fatalf("Expected 4 decoded signals, got %d", len(values))
	}

	byDesc := make(map[string]int64)
	for _, v := range values {
		byDesc[v.Signal.Description] = v.Raw
	}

	if byDesc["Status word"] != 0x0102 {
		t.Errorf("Status word = %d, want %d", byDesc["Status word"], 0x0102)
	}
	if byDesc["Actual speed"] != -2 {
		t.Errorf("Actual speed = %d, want -2", byDesc["Actual speed"])
	}
	if byDesc["RMS motor Current"] != 0x0304 {
		t.Errorf("RMS motor Current = %d, want %d", byDesc["RMS motor Current"], 0x0304)
	}
	if byDesc["DC Bus Voltage"] != 0x0506 {
		t.Errorf("DC Bus Voltage = %d, want %d", byDesc["DC Bus Voltage"], 0x0506)
	}
}

func TestFrameDecodesByteAndNibbleSignals(t *testing.T) {
	data := []byte{0xAB, 0xFC, 0x00, 0x10, 0x00, 0x20, 0x00, 0x30}

	values := Frame(FramePDO3, data)
	byDesc := make(map[string]int64)
	for _, v := range values {
		byDesc[v.Signal.Description] = v.Raw
	}

	if byDesc["Field weakening control: regulator status"] != 0xAB {
		t.Errorf("regulator status = %d, want %d", byDesc["Field weakening control: regulator status"], 0xAB)
	}
	// Only the low nibble of byte 1 counts
	if byDesc["Current limit: actual limit type"] != 0x0C {
		t.Errorf("limit type = %d, want %d", byDesc["Current limit: actual limit type"], 0x0C)
	}
}

func TestFrameSkipsSignalsBeyondPayload(t *testing.T) {
	// Short frame: only the first two signals of PDO1 fit
	data := []byte{0x00, 0x01, 0x00, 0x02}

	values := Frame(FramePDO1, data)
	if len(values) != 2 {
		t.Fatalf("Expected 2 decoded signals for a 4-byte frame, got %d", len(values))
	}
	for _, v := range values {
		if v.Signal.End >= len(data) {
			t.Errorf("Decoded signal %q beyond payload", v.Signal.Description)
		}
	}
}

func TestFrameUnknownIDDecodesNothing(t *testing.T) {
	values := Frame(999, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if len(values) != 0 {
		t.Errorf("Expected no signals for unknown frame, got %d", len(values))
	}
}

func TestBusVoltageLittleEndian(t *testing.T) {
	data := []byte{0, 0, 0, 0, 0, 0, 0x96, 0x00} // 150 little-endian

	v, ok := BusVoltage(FramePDO1, data)
	if !ok {
		t.Fatal("Expected voltage from a full PDO1 frame")
	}
	if v != 150 {
		t.Errorf("Voltage = %d, want 150", v)
	}

	if _, ok := BusVoltage(FramePDO2, data); ok {
		t.Error("Voltage should only come from PDO1")
	}
	if _, ok := BusVoltage(FramePDO1, data[:6]); ok {
		t.Error("Voltage should require a full 8-byte payload")
	}
}

func TestPDOLabel(t *testing.T) {
	if got := PDOLabel(FramePDO2); got != "PDO2" {
		t.Errorf("PDOLabel(646) = %q, want PDO2", got)
	}
	if got := PDOLabel(4242); got != "Unknown PDO" {
		t.Errorf("PDOLabel(4242) = %q, want Unknown PDO", got)
	}
}

func TestColumnHeaders(t *testing.T) {
	headers := ColumnHeaders()
	if len(headers) != 6+17 {
		t.Fatalf("Expected %d headers, got %d", 6+17, len(headers))
	}
	if headers[0] != "Trial Number" || headers[3] != "PDO Label" {
		t.Errorf("Unexpected metadata headers: %v", headers[:6])
	}
	if headers[6] != "Status word" {
		t.Errorf("First signal header = %q, want Status word", headers[6])
	}
}
