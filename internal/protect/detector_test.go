package protect

import "testing"

func TestDetector_Defaults(t *testing.T) {
	d := New()

	tests := []struct {
		path     string
		expected bool
	}{
		{".env", true},
		{"config/.env.production", true},
		{"deploy/prod.env", true},
		{"certs/server.pem", true},
		{"certs/server.KEY", true},
		{"home/.ssh/config", true},
		{"app/secrets/db.yaml", true},
		{"secrets/token", true},
		{"id_ed25519", true},
		{"gcp/service-account-prod.json", true},
		{"internal/auth/login.go", false},
		{"internal/session/session.go", false},
		{"docs/env.md", false},
		{"keys.go", false},
		{"README.md", false},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := d.IsProtected(tc.path); got != tc.expected {
				t.Errorf("IsProtected(%q) = %v, expected %v (reason %q)", tc.path, got, tc.expected, d.Reason(tc.path))
			}
		})
	}
}

func TestDetector_Extra(t *testing.T) {
	d := New("fixtures/private/", "*.tfstate", "  ", "./vault/*.hcl")

	tests := []struct {
		path     string
		expected bool
	}{
		{"fixtures/private/a.json", true},
		{"fixtures/private/deep/b.json", true},
		{"fixtures/public/a.json", false},
		{"infra/terraform.tfstate", true},
		{"vault/policy.hcl", true},
		{"other/vault/policy.hcl", false},
	}
	for _, tc := range tests {
		if got := d.MatchesPath(tc.path); got != tc.expected {
			t.Errorf("MatchesPath(%q) = %v, expected %v", tc.path, got, tc.expected)
		}
	}
}

func TestDetector_Reason(t *testing.T) {
	d := New()
	if r := d.Reason("a/b/server.pem"); r != "file type .pem" {
		t.Errorf("Reason = %q", r)
	}
	if r := d.Reason("main.go"); r != "" {
		t.Errorf("Reason = %q, expected empty", r)
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		path, pattern string
		expected      bool
	}{
		{"a/b/c", "**", true},
		{"a/b/c", "a/**", true},
		{"a/b/c", "**/c", true},
		{"a/b/c", "**/b/**", true},
		{"a/b/c", "a/*/c", true},
		{"a/b/c", "a/*", false},
		{"a/b", "a/b/**", true},
		{"x/a/b", "a/**", false},
	}
	for _, tc := range tests {
		if got := globMatch(tc.path, tc.pattern); got != tc.expected {
			t.Errorf("globMatch(%q, %q) = %v, expected %v", tc.path, tc.pattern, got, tc.expected)
		}
	}
}

func TestWildcard(t *testing.T) {
	tests := []struct {
		s, pattern string
		expected   bool
	}{
		{"file.go", "*.go", true},
		{"file.go", "file.*", true},
		{"my_test_file.go", "*test*", true},
		{"file.go", "*.js", false},
		{".env", ".env.*", false},
		{".env.local", ".env.*", true},
		{"ab", "a*b*", true},
		{"aXbXc", "a*b*c", true},
		{"ac", "a*b*c", false},
		{"exact", "exact", true},
	}
	for _, tc := range tests {
		if got := wildcard(tc.s, tc.pattern); got != tc.expected {
			t.Errorf("wildcard(%q, %q) = %v, expected %v", tc.s, tc.pattern, got, tc.expected)
		}
	}
}
