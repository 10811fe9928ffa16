package n2k

import "fmt"

// PGN is a Parameter Group Number: the message type of a frame.
type PGN uint32

// PGNs handled by the device registry.
const (
	// PGNISOAddressClaim carries a node's 64-bit NAME.
	PGNISOAddressClaim PGN = 60928

	// PGNProductInformation carries model, software and certification data.
	PGNProductInformation PGN = 126996

	// PGNConfigurationInformation carries installer-entered descriptions.
	PGNConfigurationInformation PGN = 126998
)

// String returns the PGN number with its name when known.
func (p PGN) String() string {
	if s, ok := schemas[p]; ok {
		return fmt.Sprintf("%d (%s)", uint32(p), s.Name())
	}
	return fmt.Sprintf("%d", uint32(p))
}

// Address claim field names.
const (
	FieldUniqueNumber            = "unique_number"
	FieldManufacturerCode        = "manufacturer_code"
	FieldDeviceInstanceLower     = "device_instance_lower"
	FieldDeviceInstanceUpper     = "device_instance_upper"
	FieldDeviceFunction          = "device_function"
	FieldReserved                = "reserved"
	FieldDeviceClass             = "device_class"
	FieldSystemInstance          = "system_instance"
	FieldIndustryGroup           = "industry_group"
	FieldArbitraryAddressCapable = "arbitrary_address_capable"
)

// Product information field names.
const (
	FieldN2kVersion         = "n2k_version"
	FieldProductCode        = "product_code"
	FieldModelID            = "model_id"
	FieldSoftwareCode       = "software_code"
	FieldModelVersion       = "model_version"
	FieldModelSerialCode    = "model_serial_code"
	FieldCertificationLevel = "certification_level"
	FieldLoadEquivalency    = "load_equivalency"
)

// Configuration information field names.
const (
	FieldInstallationDescription1 = "installation_description_1"
	FieldInstallationDescription2 = "installation_description_2"
	FieldManufacturerInformation  = "manufacturer_information"
)

// NameBytes is the length of an address claim payload.
const NameBytes = 8

// productTextBits is the width of each fixed product information string.
const productTextBits = 32 * 8

// AddressClaimSchema lays out the 64-bit NAME, least significant bit first.
var AddressClaimSchema = MustSchema(PGNISOAddressClaim, "ISO Address Claim",
	FieldSpec{Name: FieldUniqueNumber, BitOffset: 0, BitLength: 21, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldManufacturerCode, BitOffset: 21, BitLength: 11, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldDeviceInstanceLower, BitOffset: 32, BitLength: 3, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldDeviceInstanceUpper, BitOffset: 35, BitLength: 5, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldDeviceFunction, BitOffset: 40, BitLength: 8, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldReserved, BitOffset: 48, BitLength: 1, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldDeviceClass, BitOffset: 49, BitLength: 7, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldSystemInstance, BitOffset: 56, BitLength: 4, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldIndustryGroup, BitOffset: 60, BitLength: 3, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldArbitraryAddressCapable, BitOffset: 63, BitLength: 1, Kind: KindUnsignedInt},
)

// ProductInformationSchema is the 134-byte product information layout.
var ProductInformationSchema = MustSchema(PGNProductInformation, "Product Information",
	FieldSpec{Name: FieldN2kVersion, BitOffset: 0, BitLength: 16, Scale: 0.001, Kind: KindUnsignedScaledDouble},
	FieldSpec{Name: FieldProductCode, BitOffset: 16, BitLength: 16, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldModelID, BitOffset: 32, BitLength: productTextBits, Kind: KindFixedText},
	FieldSpec{Name: FieldSoftwareCode, BitOffset: 32 + productTextBits, BitLength: productTextBits, Kind: KindFixedText},
	FieldSpec{Name: FieldModelVersion, BitOffset: 32 + 2*productTextBits, BitLength: productTextBits, Kind: KindFixedText},
	FieldSpec{Name: FieldModelSerialCode, BitOffset: 32 + 3*productTextBits, BitLength: productTextBits, Kind: KindFixedText},
	FieldSpec{Name: FieldCertificationLevel, BitOffset: 32 + 4*productTextBits, BitLength: 8, Kind: KindUnsignedInt},
	FieldSpec{Name: FieldLoadEquivalency, BitOffset: 40 + 4*productTextBits, BitLength: 8, Kind: KindUnsignedInt},
)

// ConfigurationInformationSchema is three consecutive variable text fields.
var ConfigurationInformationSchema = MustSchema(PGNConfigurationInformation, "Configuration Information",
	FieldSpec{Name: FieldInstallationDescription1, Kind: KindVariableText},
	FieldSpec{Name: FieldInstallationDescription2, Kind: KindVariableText},
	FieldSpec{Name: FieldManufacturerInformation, Kind: KindVariableText},
)

var schemas = map[PGN]*Schema{
	PGNISOAddressClaim:          AddressClaimSchema,
	PGNProductInformation:       ProductInformationSchema,
	PGNConfigurationInformation: ConfigurationInformationSchema,
}

// SchemaFor returns the built-in schema for pgn.
func SchemaFor(pgn PGN) (*Schema, bool) {
	s, ok := schemas[pgn]
	return s, ok
}
