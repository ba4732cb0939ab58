package services

import "testing"

func TestIsVerified(t *testing.T) {
	cases := []struct {
		name        string
		displayName string
		marker      string
		want        bool
	}{
		{name: "plain name", displayName: "Jane", marker: DefaultVerificationMarker, want: false},
		{name: "marker as last name", displayName: "Jane tornettlogs.cc uhq logs", marker: DefaultVerificationMarker, want: true},
		{name: "upper case", displayName: "JANE TORNETTLOGS.CC UHQ LOGS", marker: DefaultVerificationMarker, want: true},
		{name: "mixed case inside", displayName: "x TornettLogs.CC uhq LOGS y", marker: DefaultVerificationMarker, want: true},
		{name: "partial marker", displayName: "Jane tornettlogs.cc", marker: DefaultVerificationMarker, want: false},
		{name: "empty name", displayName: "", marker: DefaultVerificationMarker, want: false},
		{name: "blank marker", displayName: "Jane", marker: "  ", want: false},
		{name: "custom marker", displayName: "Ana example.org VIP", marker: "example.org vip", want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsVerified(tc.displayName, tc.marker); got != tc.want {
				t.Fatalf("IsVerified(%q, %q) = %v, want %v", tc.displayName, tc.marker, got, tc.want)
			}
		})
	}
}
