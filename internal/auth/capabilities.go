// Package auth - capabilities.go defines the capability tags stored on roles and the helpers
// for validating them. Capability checks are exact string matches: there is no wildcard and
// no implied hierarchy between tags.
package auth

import (
	"fmt"
)

// Capability is an opaque permission tag carried by a role
type Capability string

const (
	// Organization settings, roles and billing configuration
	CapabilityManageSettings Capability = "manage_settings"

	// Membership management
	CapabilityMembersManage Capability = "members:manage"

	// Project scopes
	CapabilityProjectCreate  Capability = "project:create"
	CapabilityProjectUpdate  Capability = "project:update"
	CapabilityProjectAdvance Capability = "project:advance"

	// Activity feed
	CapabilityActivityRead Capability = "activity:read"
)

// AllCapabilities returns every capability the service checks
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityManageSettings,
		CapabilityMembersManage,
		CapabilityProjectCreate,
		CapabilityProjectUpdate,
		CapabilityProjectAdvance,
		CapabilityActivityRead,
	}
}

// ValidCapabilities returns a set of the known capability strings
func ValidCapabilities() map[string]bool {
	valid := make(map[string]bool, len(AllCapabilities()))
	for _, c := range AllCapabilities() {
		valid[string(c)] = true
	}
	return valid
}

// ValidateCapabilities checks that every tag is a known capability. Roles may
// still carry unknown tags in storage; they simply never match a check.
func ValidateCapabilities(tags []string) error {
	valid := ValidCapabilities()
	for _, tag := range tags {
		if !valid[tag] {
			return fmt.Errorf("invalid capability: %s", tag)
		}
	}
	return nil
}

// HasCapability reports whether tags contains required exactly
func HasCapability(tags []string, required Capability) bool {
	for _, tag := range tags {
		if tag == string(required) {
			return true
		}
	}
	return false
}
