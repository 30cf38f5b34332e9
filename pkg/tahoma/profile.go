package tahoma

import "strings"

// profileRule is one entry of the ordered classification table. The first
// matching rule wins.
type profileRule struct {
	match   func(controllableName string) bool
	profile CapabilityProfile
}

func contains(fragment string) func(string) bool {
	return func(controllableName string) bool {
		return strings.Contains(controllableName, fragment)
	}
}

// profileRules maps a device type tag to its capability profile, most
// specific pattern first. Unmatched types fall back to FullFeatured so
// unknown hardware stays controllable instead of being dropped.
var profileRules = []profileRule{
	{contains("VenetianBlind"), ProfilePrimaryAndTilt},
	{contains("DualRollerShutter"), ProfilePrimaryAndSecondary},
	{contains("ExteriorScreen"), ProfilePrimaryOnly},
	{contains("Screen"), ProfilePrimaryOnly},
	{contains("RollerShutter"), ProfilePrimaryOnly},
	{contains("Awning"), ProfilePrimaryOnly},
	{contains("Curtain"), ProfilePrimaryOnly},
}

// ClassifyDevice returns the capability profile for a device type tag.
func ClassifyDevice(controllableName string) CapabilityProfile {
	for _, rule := range profileRules {
		if rule.match(controllableName) {
			return rule.profile
		}
	}
	return ProfileFullFeatured
}

// SupportsChannel reports whether a profile carries the given control
// channel. Informational channels (motion, signal, battery) are accepted
// on every device profile.
func (p CapabilityProfile) SupportsChannel(channel Channel) bool {
	if p == ProfileScenario {
		return false
	}
	switch channel {
	case ChannelPrimary:
		return true
	case ChannelSecondary:
		return p == ProfilePrimaryAndSecondary || p == ProfileFullFeatured
	case ChannelTilt:
		return p == ProfilePrimaryAndTilt || p == ProfileFullFeatured
	default:
		return true
	}
}
