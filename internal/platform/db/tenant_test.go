package db

import "testing"

func TestNormalizeTenantID(t *testing.T) {
	cases := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"city_general", "city_general", true},
		{"City_General", "city_general", true},
		{"  ward7 ", "ward7", true},
		{"", "", false},
		{"bad-tenant", "bad-tenant", false},
		{"tenant; DROP SCHEMA public", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeTenantID(tc.raw)
		if ok != tc.wantOK {
			t.Errorf("NormalizeTenantID(%q) ok = %v, want %v", tc.raw, ok, tc.wantOK)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("NormalizeTenantID(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeTenantID_LengthCap(t *testing.T) {
	long := make([]byte, 57)
	for i := range long {
		long[i] = 'a'
	}
	if _, ok := NormalizeTenantID(string(long)); ok {
		t.Error("57-char identifier should be rejected, schema names truncate at 63 bytes")
	}
	if _, ok := NormalizeTenantID(string(long[:56])); !ok {
		t.Error("56-char identifier should be accepted")
	}
}
