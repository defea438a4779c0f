package asdu104

// Quality is the quality descriptor bitset attached to most process
// information objects (IV/NT/SB/BL in bits 7-4, overflow OV in bit 0).
// Zero means good, fresh, locally sourced, unblocked data.
type Quality uint8

const (
	QualityGood      Quality = 0
	QualityOverflow  Quality = 1 << 0 // OV: value outside the declared range
	QualityBlocked   Quality = 1 << 4 // BL: value blocked for transmission
	QualitySubst     Quality = 1 << 5 // SB: value substituted by an operator
	QualityNotTopical Quality = 1 << 6 // NT: value not updated since the last known-good state
	QualityInvalid   Quality = 1 << 7 // IV: value not correctly acquired by the source
)

// Good reports whether none of the quality bits are set.
func (q Quality) Good() bool { return q == QualityGood }

// Invalid reports whether the IV bit is set.
func (q Quality) Invalid() bool { return q&QualityInvalid != 0 }

// DoublePointValue is the two-bit indication used by double-point
// information and double commands (DPI/DCO low bits): a single bit cannot
// represent the intermediate and indeterminate states a breaker reports
// while travelling.
type DoublePointValue uint8

const (
	DoubleIndeterminateOff DoublePointValue = 0
	DoubleOff              DoublePointValue = 1
	DoubleOn               DoublePointValue = 2
	DoubleIndeterminateOn  DoublePointValue = 3
)

// StepCommandValue is the two-bit direction used by regulating step
// commands and step position feedback transients.
type StepCommandValue uint8

const (
	StepNotPermitted StepCommandValue = 0
	StepLower        StepCommandValue = 1
	StepHigher       StepCommandValue = 2
	StepNotPermitted2 StepCommandValue = 3
)
