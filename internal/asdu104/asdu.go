package asdu104

// ASDU (Application Service Data Unit) is the payload carried by an I-frame:
// a type identifier, a variable structure qualifier, a cause of
// transmission with test/negative flags, an originator and common address,
// and a list of information objects.
//
// Field layout on the wire (after the type identifier byte):
//
//	byte 1: VSQ   - bit7 SQ, bits0-6 number of information objects
//	byte 2: COT   - bit7 T (test), bit6 P/N (negative confirm), bits0-5 cause
//	byte 3: ORG   - originator address (0 = default, not used)
//	byte 4-5: common address of ASDU, little-endian
//	remainder: information objects
type ASDU struct {
	Type            TypeID
	SQ              bool // objects form one contiguous sequence sharing a base IOA
	Test            bool
	Negative        bool
	Cause           Cause
	Originator      uint8
	CommonAddr      uint16
	Objects         []InformationObject
}

// GlobalCommonAddr addresses every station behind a connection at once;
// used only for broadcast system commands, never by this collector.
const GlobalCommonAddr uint16 = 0xffff

// EncodeASDU serializes a into its wire form.
func EncodeASDU(a ASDU) ([]byte, error) {
	if len(a.Objects) == 0 || len(a.Objects) > 127 {
		return nil, ErrBadValue
	}
	vsq := byte(len(a.Objects))
	if a.SQ {
		vsq |= 0x80
	}
	cot := byte(a.Cause) & 0x3f
	if a.Test {
		cot |= 0x80
	}
	if a.Negative {
		cot |= 0x40
	}
	buf := make([]byte, 0, 16)
	buf = append(buf, byte(a.Type), vsq, cot, a.Originator,
		byte(a.CommonAddr), byte(a.CommonAddr>>8))
	buf, err := encodeInformationObjects(buf, a.Objects, a.SQ)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeASDU parses the wire form of an ASDU.
func DecodeASDU(data []byte) (ASDU, error) {
	if len(data) < 6 {
		return ASDU{}, ErrBadFormat
	}
	typ := TypeID(data[0])
	vsq := data[1]
	sq := vsq&0x80 != 0
	n := int(vsq & 0x7f)
	cot := data[2]
	a := ASDU{
		Type:       typ,
		SQ:         sq,
		Test:       cot&0x80 != 0,
		Negative:   cot&0x40 != 0,
		Cause:      Cause(cot & 0x3f),
		Originator: data[3],
		CommonAddr: uint16(data[4]) | uint16(data[5])<<8,
	}
	if n == 0 {
		return ASDU{}, ErrBadFormat
	}
	objs, err := decodeInformationObjects(typ, sq, n, data[6:])
	if err != nil {
		return ASDU{}, err
	}
	a.Objects = objs
	return a, nil
}
