package asdu104

// EncodeFrame serializes frame (and, for an IFrame, its ASDU payload
// which the caller has already encoded) into a complete APDU: start byte,
// length octet, four-byte APCI, then the ASDU bytes.
func EncodeFrame(frame Frame) ([]byte, error) {
	cf, asdu := EncodeAPCI(frame)
	apduLen := 4 + len(asdu)
	if apduLen > MaxAPDULen {
		return nil, ErrBadValue
	}
	buf := make([]byte, 0, 2+apduLen)
	buf = append(buf, StartByte, byte(apduLen))
	buf = append(buf, cf[:]...)
	buf = append(buf, asdu...)
	return buf, nil
}

// DecodeFrame parses one complete APDU, including its start byte and
// length octet, from data. It returns the decoded frame and the number
// of bytes consumed.
func DecodeFrame(data []byte) (Frame, int, error) {
	if len(data) < 6 {
		return nil, 0, ErrBadFormat
	}
	if data[0] != StartByte {
		return nil, 0, ErrBadFormat
	}
	apduLen := int(data[1])
	total := 2 + apduLen
	if apduLen < 4 || total > len(data) {
		return nil, 0, ErrBadFormat
	}
	var cf [4]byte
	copy(cf[:], data[2:6])
	rest := data[6:total]
	frame, err := DecodeAPCI(cf, rest)
	if err != nil {
		return nil, 0, err
	}
	return frame, total, nil
}

// APDULength reports the total length in bytes (start byte and length
// octet included) of the APDU that begins at data. known is false, and
// total 0, when data holds fewer than 2 bytes or does not begin with
// StartByte. The link reader uses it to tell when a whole APDU has
// arrived.
func APDULength(data []byte) (total int, known bool) {
	if len(data) < 2 {
		return 0, false
	}
	if data[0] != StartByte {
		return 0, false
	}
	return 2 + int(data[1]), true
}
