package inventory

// Device is an IEC 104 outstation: one TCP endpoint, one common address
// namespace, polled by exactly one Device actor.
type Device struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Identify string `json:"identify"`
	Status   string `json:"status"` // "on" or "off"
	Protocol string `json:"protocol"`
}

// Terminal is a logical sub-unit of a device: a breaker bay, a feeder, a
// bus section — whatever the owning device's protocol addresses as a
// named subset of its information objects.
type Terminal struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Identify string `json:"identify"`
	Protocol string `json:"protocol"`
	DeviceID int64  `json:"device_id"`
}

// Item is a measurable or controllable point: a single signal or
// indicator, independent of which terminal reports it.
type Item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ViewCode string `json:"view_code"`
	FuncType string `json:"func_type"`
}

// TermItem binds an Item to a Terminal and carries the protocol-specific
// addressing and scaling needed to interpret the wire value: ProtocolCode
// is the information object address (as a string, to stay protocol
// agnostic at the inventory layer), BaseVal and Coefficient convert a raw
// scaled reading into engineering units.
type TermItem struct {
	ID           int64   `json:"id"`
	TermID       int64   `json:"term_id"`
	ItemID       int64   `json:"item_id"`
	ProtocolCode string  `json:"protocol_code"`
	BaseVal      float64 `json:"base_val"`
	Coefficient  float64 `json:"coefficient"`
	DBSaveSQL    string  `json:"db_save_sql"`
	// CodeType is the ASDU type identifier used to build a control
	// frame for this binding (e.g. C_SC_NA_1, C_SE_NB_1), set only on
	// bindings the gateway can issue commands against.
	CodeType uint8 `json:"code_type"`
}
