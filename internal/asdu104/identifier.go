package asdu104

import "fmt"

// TypeID (Type Identification, 1 byte) names the ASDU's payload shape.
// Value range:
//   - 0 is not used.
//   - 1-127 standard IEC 101 definitions.
//   - 100-106 system information in control direction.
//
// Only the identifiers this collector's device inventory can bind to are
// named below; an unrecognized value decodes to ErrBadFormat.
type TypeID uint8

// Process information in monitor direction.
const (
	MSpNA1 TypeID = 1  // single point information
	MSpTA1 TypeID = 2  // single point information, CP24Time2a
	MDpNA1 TypeID = 3  // double point information
	MDpTA1 TypeID = 4  // double point information, CP24Time2a
	MStNA1 TypeID = 5  // step position information
	MStTA1 TypeID = 6  // step position information, CP24Time2a
	MBoNA1 TypeID = 7  // 32-bit bitstring
	MBoTA1 TypeID = 8  // 32-bit bitstring, CP24Time2a
	MMeNA1 TypeID = 9  // measured value, normalized
	MMeTA1 TypeID = 10 // measured value, normalized, CP24Time2a
	MMeNB1 TypeID = 11 // measured value, scaled
	MMeTB1 TypeID = 12 // measured value, scaled, CP24Time2a
	MMeNC1 TypeID = 13 // measured value, short float
	MMeTC1 TypeID = 14 // measured value, short float, CP24Time2a
	MItNA1 TypeID = 15 // integrated totals
	MItTA1 TypeID = 16 // integrated totals, CP24Time2a
	MPsNA1 TypeID = 20 // packed single-point with status change detection
	MMeND1 TypeID = 21 // measured value, normalized, no quality descriptor
	MSpTB1 TypeID = 30 // single point information, CP56Time2a
	MDpTB1 TypeID = 31 // double point information, CP56Time2a
	MStTB1 TypeID = 32 // step position information, CP56Time2a
	MBoTB1 TypeID = 33 // 32-bit bitstring, CP56Time2a
	MMeTD1 TypeID = 34 // measured value, normalized, CP56Time2a
	MMeTE1 TypeID = 35 // measured value, scaled, CP56Time2a
	MMeTF1 TypeID = 36 // measured value, short float, CP56Time2a
	MItTB1 TypeID = 37 // integrated totals, CP56Time2a
	MEpTD1 TypeID = 38 // protection event, CP56Time2a
)

// Process information and set-point commands in control direction.
const (
	CScNA1 TypeID = 45 // single command
	CDcNA1 TypeID = 46 // double command
	CRcNA1 TypeID = 47 // regulating step command
	CSeNA1 TypeID = 48 // set-point command, normalized
	CSeNB1 TypeID = 49 // set-point command, scaled
	CSeNC1 TypeID = 50 // set-point command, short float
	CBoNA1 TypeID = 51 // 32-bit bitstring command
	CScTA1 TypeID = 58 // single command, CP56Time2a
	CDcTA1 TypeID = 59 // double command, CP56Time2a
	CRcTA1 TypeID = 60 // regulating step command, CP56Time2a
	CSeTA1 TypeID = 61 // set-point command, normalized, CP56Time2a
	CSeTB1 TypeID = 62 // set-point command, scaled, CP56Time2a
	CSeTC1 TypeID = 63 // set-point command, short float, CP56Time2a
	CBoTA1 TypeID = 64 // 32-bit bitstring command, CP56Time2a
)

// System commands in control direction.
const (
	CIcNA1 TypeID = 100 // general interrogation command
	CCiNA1 TypeID = 101 // counter interrogation command
	CRdNA1 TypeID = 102 // read command
	CCsNA1 TypeID = 103 // clock synchronization command
)

func (t TypeID) String() string {
	if name, ok := typeIDNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TypeID(%d)", uint8(t))
}

var typeIDNames = map[TypeID]string{
	MSpNA1: "M_SP_NA_1", MSpTA1: "M_SP_TA_1", MDpNA1: "M_DP_NA_1", MDpTA1: "M_DP_TA_1",
	MStNA1: "M_ST_NA_1", MStTA1: "M_ST_TA_1", MBoNA1: "M_BO_NA_1", MBoTA1: "M_BO_TA_1",
	MMeNA1: "M_ME_NA_1", MMeTA1: "M_ME_TA_1", MMeNB1: "M_ME_NB_1", MMeTB1: "M_ME_TB_1",
	MMeNC1: "M_ME_NC_1", MMeTC1: "M_ME_TC_1", MItNA1: "M_IT_NA_1", MItTA1: "M_IT_TA_1",
	MPsNA1: "M_PS_NA_1", MMeND1: "M_ME_ND_1", MSpTB1: "M_SP_TB_1", MDpTB1: "M_DP_TB_1",
	MStTB1: "M_ST_TB_1", MBoTB1: "M_BO_TB_1", MMeTD1: "M_ME_TD_1", MMeTE1: "M_ME_TE_1",
	MMeTF1: "M_ME_TF_1", MItTB1: "M_IT_TB_1", MEpTD1: "M_EP_TD_1",
	CScNA1: "C_SC_NA_1", CDcNA1: "C_DC_NA_1", CRcNA1: "C_RC_NA_1", CSeNA1: "C_SE_NA_1",
	CSeNB1: "C_SE_NB_1", CSeNC1: "C_SE_NC_1", CBoNA1: "C_BO_NA_1", CScTA1: "C_SC_TA_1",
	CDcTA1: "C_DC_TA_1", CRcTA1: "C_RC_TA_1", CSeTA1: "C_SE_TA_1", CSeTB1: "C_SE_TB_1",
	CSeTC1: "C_SE_TC_1", CBoTA1: "C_BO_TA_1",
	CIcNA1: "C_IC_NA_1", CCiNA1: "C_CI_NA_1", CRdNA1: "C_RD_NA_1", CCsNA1: "C_CS_NA_1",
}

// IsMeasurement reports whether the type carries process information in
// monitor direction (the types the measurement pipeline can consume).
func (t TypeID) IsMeasurement() bool {
	return t >= MSpNA1 && t <= MEpTD1
}

// IsCommand reports whether the type is a process command in control
// direction (select-and-execute candidates).
func (t TypeID) IsCommand() bool {
	return t >= CScNA1 && t <= CBoTA1
}

// Cause (Cause of Transmission, 6 bits) controls message routing: it tells
// the receiver why an ASDU was sent and, for commands, what stage of the
// activation handshake it represents.
type Cause uint8

// Cause values defined by companion standard 101.
const (
	CauseUnused   Cause = 0
	CausePeriodic Cause = 1  // periodic, cyclic
	CauseBack     Cause = 2  // background scan
	CauseSpont    Cause = 3  // spontaneous
	CauseInit     Cause = 4  // initialized
	CauseReq      Cause = 5  // request or requested
	CauseAct      Cause = 6  // activation
	CauseActCon   Cause = 7  // activation confirmation
	CauseDeact    Cause = 8  // deactivation
	CauseDeactCon Cause = 9  // deactivation confirmation
	CauseActTerm  Cause = 10 // activation termination
	CauseRetRem   Cause = 11 // return caused by remote command
	CauseRetLoc   Cause = 12 // return caused by local command
	CauseFile     Cause = 13 // file transfer

	CauseInrogen Cause = 20 // interrogated by station (general) interrogation
	// CauseInro1..CauseInro16 (21-36) address interrogation groups 1-16;
	// the collector only issues general interrogation, so only the base
	// value is named.

	CauseReqCoGen Cause = 37 // interrogated by general counter interrogation
	// CauseReqCo1..CauseReqCo4 (38-41) address counter groups 1-4.

	CauseUnknownType      Cause = 44
	CauseUnknownCause     Cause = 45
	CauseUnknownCommonAdr Cause = 46
	CauseUnknownObjAdr    Cause = 47
)

func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Cause(%d)", uint8(c))
}

var causeNames = map[Cause]string{
	CauseUnused: "unused", CausePeriodic: "percyc", CauseBack: "back", CauseSpont: "spont",
	CauseInit: "init", CauseReq: "req", CauseAct: "act", CauseActCon: "actcon",
	CauseDeact: "deact", CauseDeactCon: "deactcon", CauseActTerm: "actterm",
	CauseRetRem: "retrem", CauseRetLoc: "retloc", CauseFile: "file",
	CauseInrogen: "introgen", CauseReqCoGen: "reqcogen",
	CauseUnknownType: "unknown-type", CauseUnknownCause: "unknown-cause",
	CauseUnknownCommonAdr: "unknown-common-addr", CauseUnknownObjAdr: "unknown-obj-addr",
}
