package device

import "time"

// loadEquivalencyMilliamps is the current drawn per unit of load equivalency.
const loadEquivalencyMilliamps = 50

// ProductInfo is the decoded Product Information message (PGN 126996).
// Numeric fields are nil when the node reported no data or an error value;
// text fields the node left out are empty.
type ProductInfo struct {
	N2kVersion         *float64 `json:"n2k_version,omitempty"`
	ProductCode        *uint16  `json:"product_code,omitempty"`
	ModelID            string   `json:"model_id,omitempty"`
	SoftwareCode       string   `json:"software_code,omitempty"`
	ModelVersion       string   `json:"model_version,omitempty"`
	ModelSerialCode    string   `json:"model_serial_code,omitempty"`
	CertificationLevel *uint8   `json:"certification_level,omitempty"`
	LoadEquivalency    *uint8   `json:"load_equivalency,omitempty"`
}

// LoadCurrentMilliamps returns the bus current the node declares it draws.
// ok is false when the node did not report its load equivalency.
func (p ProductInfo) LoadCurrentMilliamps() (milliamps int, ok bool) {
	if p.LoadEquivalency == nil {
		return 0, false
	}
	return int(*p.LoadEquivalency) * loadEquivalencyMilliamps, true
}

// clone returns a copy that shares no pointers with p.
func (p ProductInfo) clone() ProductInfo {
	p.N2kVersion = clonePtr(p.N2kVersion)
	p.ProductCode = clonePtr(p.ProductCode)
	p.CertificationLevel = clonePtr(p.CertificationLevel)
	p.LoadEquivalency = clonePtr(p.LoadEquivalency)
	return p
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ConfigInfo is the decoded Configuration Information message (PGN 126998).
type ConfigInfo struct {
	InstallationDescription1 string `json:"installation_description_1,omitempty"`
	InstallationDescription2 string `json:"installation_description_2,omitempty"`
	Manufacturer             string `json:"manufacturer,omitempty"`
}

// Labels are human-readable names for a node's identity codes.
type Labels struct {
	Manufacturer string `json:"manufacturer"`
	Class        string `json:"class"`
	Function     string `json:"function"`
}

// Labeler resolves identity codes to display labels. Implementations return a
// fallback label for unknown codes rather than an empty string.
type Labeler interface {
	Manufacturer(code uint16) string
	Class(class uint8) string
	Function(class, function uint8) string
}

// Device is a point-in-time copy of one node's record. It is safe to keep and
// share; later frames do not change it.
type Device struct {
	Address  uint8        `json:"address"`
	Name     string       `json:"name"`
	Identity Identity     `json:"identity"`
	Labels   *Labels      `json:"labels,omitempty"`
	Product  *ProductInfo `json:"product,omitempty"`
	Config   *ConfigInfo  `json:"config,omitempty"`
	LastSeen time.Time    `json:"last_seen"`
}

// Stats summarises the registry for status endpoints.
type Stats struct {
	Devices        int            `json:"devices"`
	ByManufacturer map[string]int `json:"by_manufacturer"`
	ByClass        map[string]int `json:"by_class"`
	EventsEmitted  uint64         `json:"events_emitted"`
	EventsDropped  uint64         `json:"events_dropped"`
	Subscribers    int            `json:"subscribers"`
}
