package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/n2k-monitor/internal/n2k"
)

var baseTime = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// testIdentity returns a depth sounder identity with the given unique number.
func testIdentity(unique uint32) Identity {
	return Identity{
		UniqueNumber:            unique,
		ManufacturerCode:        137,
		DeviceInstanceLower:     1,
		DeviceInstanceUpper:     2,
		DeviceFunction:          130,
		DeviceClass:             60,
		IndustryGroup:           4,
		ArbitraryAddressCapable: true,
	}
}

func nameOf(t testing.TB, id Identity) uint64 {
	t.Helper()
	name, ok := ParseName(id.Payload())
	require.True(t, ok)
	return name
}

func frame(pgn n2k.PGN, src uint8, data []byte) n2k.Frame {
	return n2k.NewFrame(n2k.Header{
		PGN:         pgn,
		Priority:    6,
		Source:      src,
		Destination: n2k.AddressGlobal,
	}, data, baseTime)
}

func claimFrame(src uint8, id Identity) n2k.Frame {
	return frame(n2k.PGNISOAddressClaim, src, id.Payload())
}

func productFrame(t testing.TB, src uint8, model string, load uint64) n2k.Frame {
	t.Helper()
	msg := n2k.NewMessage(n2k.ProductInformationSchema)
	require.NoError(t, msg.Set(n2k.FieldN2kVersion, n2k.FloatValue(2.1)))
	require.NoError(t, msg.Set(n2k.FieldProductCode, n2k.UintValue(1234)))
	require.NoError(t, msg.Set(n2k.FieldModelID, n2k.TextValue(model)))
	require.NoError(t, msg.Set(n2k.FieldSoftwareCode, n2k.TextValue("1.0.4")))
	require.NoError(t, msg.Set(n2k.FieldModelSerialCode, n2k.TextValue("SN-0042")))
	require.NoError(t, msg.Set(n2k.FieldCertificationLevel, n2k.UintValue(1)))
	require.NoError(t, msg.Set(n2k.FieldLoadEquivalency, n2k.UintValue(load)))
	return frame(n2k.PGNProductInformation, src, msg.Bytes())
}

func configFrame(t testing.TB, src uint8, desc1, desc2, manufacturer string) n2k.Frame {
	t.Helper()
	msg := n2k.NewMessage(n2k.ConfigurationInformationSchema)
	require.NoError(t, msg.Set(n2k.FieldInstallationDescription1, n2k.TextValue(desc1)))
	require.NoError(t, msg.Set(n2k.FieldInstallationDescription2, n2k.TextValue(desc2)))
	require.NoError(t, msg.Set(n2k.FieldManufacturerInformation, n2k.TextValue(manufacturer)))
	return frame(n2k.PGNConfigurationInformation, src, msg.Bytes())
}

// stubLabeler labels codes with fixed strings.
type stubLabeler struct{}

func (stubLabeler) Manufacturer(code uint16) string {
	if code == 137 {
		return "Maretron"
	}
	return "unknown"
}

func (stubLabeler) Class(class uint8) string {
	if class == 60 {
		return "Navigation"
	}
	return "unknown"
}

func (stubLabeler) Function(class, function uint8) string {
	if class == 60 && function == 130 {
		return "Bottom Depth"
	}
	return "unknown"
}
