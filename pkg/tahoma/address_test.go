package tahoma

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveDeviceAddress(t *testing.T) {
	assert.Equal(t, "sh111", DeriveDeviceAddress("io://1/111"))
	assert.Equal(t, "sh222", DeriveDeviceAddress("io://1/222"))
	assert.Equal(t, "sh12345678", DeriveDeviceAddress("io://2001-0001-1891/12345678"))
}

func TestDeriveDeviceAddressIsDeterministic(t *testing.T) {
	first := DeriveDeviceAddress("io://2001-0001-1891/12345678")
	second := DeriveDeviceAddress("io://2001-0001-1891/12345678")
	assert.Equal(t, first, second)
}

func TestDeriveDeviceAddressIsBounded(t *testing.T) {
	address := DeriveDeviceAddress("io://2001-0001-1891/123456789012345678")
	assert.LessOrEqual(t, len(address), addressLimit)
	assert.Equal(t, "sh123456789012", address)
}

func TestDeriveDeviceAddressIsLowercase(t *testing.T) {
	assert.Equal(t, "shabcdef", DeriveDeviceAddress("io://1/ABCDEF"))
}

func TestDeriveScenarioAddress(t *testing.T) {
	address := DeriveScenarioAddress("3b8e5a01-0001-4a5b-9f00-aabbccddeeff")
	assert.Equal(t, "scene3b8e5a010", address)
	assert.LessOrEqual(t, len(address), addressLimit)
	assert.Equal(t, address, DeriveScenarioAddress("3b8e5a01-0001-4a5b-9f00-aabbccddeeff"))
}
