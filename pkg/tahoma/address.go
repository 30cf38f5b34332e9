package tahoma

import "strings"

// The host addressing scheme limits local addresses to 14 characters.
const addressLimit = 14

const (
	deviceAddressPrefix   = "sh"
	scenarioAddressPrefix = "scene"
)

// DeriveDeviceAddress converts a deviceURL into a local address. The
// address is a pure function of the deviceURL: the trailing path segment
// (unique per gateway) prefixed with "sh", lowercased and truncated to the
// address limit. Registry rebuilds therefore always re-derive the same
// address for the same device.
func DeriveDeviceAddress(deviceURL string) string {
	segments := strings.Split(deviceURL, "/")
	deviceId := segments[len(segments)-1]
	return truncateAddress(deviceAddressPrefix + deviceId)
}

// DeriveScenarioAddress converts a scenario OID into a local address the
// same way, with a "scene" prefix.
func DeriveScenarioAddress(oid string) string {
	// OIDs are UUIDs; strip the dashes so more of the unique prefix
	// survives the truncation.
	return truncateAddress(scenarioAddressPrefix + strings.ReplaceAll(oid, "-", ""))
}

func truncateAddress(address string) string {
	address = strings.ToLower(address)
	if len(address) > addressLimit {
		address = address[:addressLimit]
	}
	return address
}
