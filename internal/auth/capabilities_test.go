package auth

import "testing"

func TestValidateCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		tags    []string
		wantErr bool
	}{
		{"empty list", []string{}, false},
		{"single valid", []string{"project:advance"}, false},
		{"all defined", func() []string {
			s := make([]string, 0, len(AllCapabilities()))
			for _, c := range AllCapabilities() {
				s = append(s, string(c))
			}
			return s
		}(), false},
		{"unknown tag", []string{"project:delete"}, true},
		{"mixed valid and invalid", []string{"activity:read", "admin"}, true},
		{"empty string", []string{""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCapabilities(tt.tags)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCapabilities(%v) error = %v, wantErr %v", tt.tags, err, tt.wantErr)
			}
		})
	}
}

func TestHasCapability(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		required Capability
		want     bool
	}{
		{"exact match", []string{"project:advance"}, CapabilityProjectAdvance, true},
		{"among several", []string{"activity:read", "manage_settings"}, CapabilityManageSettings, true},
		{"absent", []string{"activity:read"}, CapabilityProjectAdvance, false},
		{"no wildcard", []string{"*"}, CapabilityProjectAdvance, false},
		{"no admin shortcut", []string{"admin"}, CapabilityManageSettings, false},
		{"no hierarchy", []string{"project:update"}, CapabilityProjectAdvance, false},
		{"prefix does not match", []string{"project"}, CapabilityProjectCreate, false},
		{"empty set", nil, CapabilityActivityRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCapability(tt.tags, tt.required); got != tt.want {
				t.Errorf("HasCapability(%v, %s) = %v, want %v", tt.tags, tt.required, got, tt.want)
			}
		})
	}
}
