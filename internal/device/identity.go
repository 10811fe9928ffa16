package device

import (
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/n2k-monitor/internal/n2k"
)

// Identity is a node's 64-bit NAME and its decomposed fields. The NAME is
// unique per physical node and does not change when the node moves to a new
// bus address.
type Identity struct {
	Name                    uint64 `json:"-"`
	UniqueNumber            uint32 `json:"unique_number"`
	ManufacturerCode        uint16 `json:"manufacturer_code"`
	DeviceInstanceLower     uint8  `json:"device_instance_lower"`
	DeviceInstanceUpper     uint8  `json:"device_instance_upper"`
	DeviceFunction          uint8  `json:"device_function"`
	DeviceClass             uint8  `json:"device_class"`
	SystemInstance          uint8  `json:"system_instance"`
	IndustryGroup           uint8  `json:"industry_group"`
	ArbitraryAddressCapable bool   `json:"arbitrary_address_capable"`
}

// DeviceInstance combines the lower and upper instance fields.
func (i Identity) DeviceInstance() uint8 {
	return i.DeviceInstanceUpper<<3 | i.DeviceInstanceLower
}

// nameField pairs an address claim spec with the Identity member it maps to.
type nameField struct {
	spec n2k.FieldSpec
	get  func(Identity) uint64
	set  func(*Identity, uint64)
}

var nameFields = []nameField{
	{mustSpec(n2k.FieldUniqueNumber),
		func(i Identity) uint64 { return uint64(i.UniqueNumber) },
		func(i *Identity, v uint64) { i.UniqueNumber = uint32(v) }},
	{mustSpec(n2k.FieldManufacturerCode),
		func(i Identity) uint64 { return uint64(i.ManufacturerCode) },
		func(i *Identity, v uint64) { i.ManufacturerCode = uint16(v) }},
	{mustSpec(n2k.FieldDeviceInstanceLower),
		func(i Identity) uint64 { return uint64(i.DeviceInstanceLower) },
		func(i *Identity, v uint64) { i.DeviceInstanceLower = uint8(v) }},
	{mustSpec(n2k.FieldDeviceInstanceUpper),
		func(i Identity) uint64 { return uint64(i.DeviceInstanceUpper) },
		func(i *Identity, v uint64) { i.DeviceInstanceUpper = uint8(v) }},
	{mustSpec(n2k.FieldDeviceFunction),
		func(i Identity) uint64 { return uint64(i.DeviceFunction) },
		func(i *Identity, v uint64) { i.DeviceFunction = uint8(v) }},
	{mustSpec(n2k.FieldDeviceClass),
		func(i Identity) uint64 { return uint64(i.DeviceClass) },
		func(i *Identity, v uint64) { i.DeviceClass = uint8(v) }},
	{mustSpec(n2k.FieldSystemInstance),
		func(i Identity) uint64 { return uint64(i.SystemInstance) },
		func(i *Identity, v uint64) { i.SystemInstance = uint8(v) }},
	{mustSpec(n2k.FieldIndustryGroup),
		func(i Identity) uint64 { return uint64(i.IndustryGroup) },
		func(i *Identity, v uint64) { i.IndustryGroup = uint8(v) }},
	{mustSpec(n2k.FieldArbitraryAddressCapable),
		func(i Identity) uint64 {
			if i.ArbitraryAddressCapable {
				return 1
			}
			return 0
		},
		func(i *Identity, v uint64) { i.ArbitraryAddressCapable = v == 1 }},
}

func mustSpec(name string) n2k.FieldSpec {
	spec, err := n2k.AddressClaimSchema.Spec(name)
	if err != nil {
		panic(err)
	}
	return spec
}

// ParseName reads the NAME from an address claim payload. ok is false for
// payloads shorter than eight bytes.
func ParseName(payload []byte) (name uint64, ok bool) {
	if len(payload) < n2k.NameBytes {
		return 0, false
	}
	return binary.LittleEndian.Uint64(payload), true
}

// DecodeIdentity splits a NAME into its fields.
//
// Every bit pattern is a legitimate NAME, so the fields are read raw rather
// than through the codec's not-available convention.
func DecodeIdentity(name uint64) Identity {
	var buf [n2k.NameBytes]byte
	binary.LittleEndian.PutUint64(buf[:], name)

	id := Identity{Name: name}
	for _, f := range nameFields {
		raw, _ := n2k.ReadBits(buf[:], f.spec.BitOffset, f.spec.BitLength)
		f.set(&id, raw)
	}
	return id
}

// Payload returns the address claim payload that announces i. The NAME is
// rebuilt from the decomposed fields; the reserved bit is zero.
func (i Identity) Payload() []byte {
	buf := make([]byte, n2k.NameBytes)
	for _, f := range nameFields {
		n2k.WriteBits(buf, f.spec.BitOffset, f.spec.BitLength, f.get(i))
	}
	return buf
}

// FormatName renders a NAME the way rules and topics spell it: 16 upper-case
// hex digits.
func FormatName(name uint64) string {
	return fmt.Sprintf("%016X", name)
}
