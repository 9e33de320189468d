package registry

import (
	"testing"

	"logvault/internal/faults"
)

func testResolver() *Resolver {
	return &Resolver{
		Registry: &Registry{Projects: []Project{
			{Name: "billing", Modules: []Module{
				{Name: "api", Config: ModuleConfig{
					Host: "billing-1.internal", User: "svc-billing",
					RemoteDir: "/var/log/billing", FilenameBase: "api",
				}},
				{Name: "worker", Config: ModuleConfig{
					RemoteDir: "/var/log/billing", FilenameBase: "worker",
				}},
			}},
			{Name: "crm", Modules: []Module{
				{Name: "web", Config: ModuleConfig{
					RemoteDir: "/srv/crm/logs", FilenameBase: "crm-web",
				}},
			}},
		}},
		Credentials: Credentials{
			"crm": {Host: "crm-1.internal", User: "svc-crm", Password: "hunter2"},
		},
	}
}

func TestResolveModuleValuesWin(t *testing.T) {
	r := testResolver()
	r.Credentials["billing"] = CredentialEntry{Host: "other.internal", User: "other", Password: "pw"}

	spec, err := r.Resolve("billing", "api", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if spec.Host != "billing-1.internal" || spec.User != "svc-billing" {
		t.Errorf("module values must win, got %s@%s", spec.User, spec.Host)
	}
	if spec.RemoteDir != "/var/log/billing" || spec.FilenameBase != "api" {
		t.Errorf("unexpected dir/base: %q/%q", spec.RemoteDir, spec.FilenameBase)
	}
}

func TestResolveCredentialFallback(t *testing.T) {
	spec, err := testResolver().Resolve("crm", "web", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if spec.Host != "crm-1.internal" || spec.User != "svc-crm" {
		t.Errorf("expected credential fallback, got %s@%s", spec.User, spec.Host)
	}
	pw, ok := spec.Auth.(PasswordAuth)
	if !ok {
		t.Fatalf("expected PasswordAuth, got %T", spec.Auth)
	}
	if pw.Password != "hunter2" {
		t.Errorf("unexpected password %q", pw.Password)
	}
}

func TestResolveOverrideUserIsLastResort(t *testing.T) {
	r := testResolver()

	// crm has a credential user, so the override must not apply.
	spec, err := r.Resolve("crm", "web", "override-user")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if spec.User != "svc-crm" {
		t.Errorf("credential user must beat override, got %q", spec.User)
	}

	// billing/worker has neither module user nor credentials: override applies,
	// but there is still no host.
	delete(r.Credentials, "billing")
	_, err = r.Resolve("billing", "worker", "override-user")
	if !faults.IsConfiguration(err) {
		t.Fatalf("expected ConfigurationError for missing host, got %v", err)
	}
}

func TestResolveUnknownProjectAndModule(t *testing.T) {
	r := testResolver()

	_, err := r.Resolve("payments", "api", "")
	if !faults.IsConfiguration(err) {
		t.Fatalf("unknown project: got %v, want ConfigurationError", err)
	}

	_, err = r.Resolve("billing", "nope", "")
	if !faults.IsConfiguration(err) {
		t.Fatalf("unknown module: got %v, want ConfigurationError", err)
	}
}

func TestResolveMissingUserFails(t *testing.T) {
	r := testResolver()
	delete(r.Credentials, "crm")
	r.Registry.Projects[1].Modules[0].Config.Host = "crm-1.internal"

	_, err := r.Resolve("crm", "web", "")
	if !faults.IsConfiguration(err) {
		t.Fatalf("expected ConfigurationError for missing user, got %v", err)
	}
}

func TestAuthSelection(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		keyPath   string
		preferKey bool
		want      string
	}{
		{"password only", "pw", "", false, "password"},
		{"key only", "", "/keys/id_ed25519", false, "key"},
		{"neither uses agent", "", "", false, "agent"},
		{"both prefers password by default", "pw", "/keys/id_ed25519", false, "password"},
		{"both with key preference", "pw", "/keys/id_ed25519", true, "key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{
				Registry: &Registry{Projects: []Project{
					{Name: "p", Modules: []Module{{Name: "m", Config: ModuleConfig{
						Host: "h", User: "u", RemoteDir: "/logs", FilenameBase: "app",
					}}}},
				}},
				KeyPath:   tt.keyPath,
				PreferKey: tt.preferKey,
			}
			if tt.password != "" {
				r.Credentials = Credentials{"p": {Password: tt.password}}
			}

			spec, err := r.Resolve("p", "m", "")
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}

			var got string
			switch spec.Auth.(type) {
			case PasswordAuth:
				got = "password"
			case KeyAuth:
				got = "key"
			case AgentAuth:
				got = "agent"
			}
			if got != tt.want {
				t.Errorf("auth = %s, want %s", got, tt.want)
			}
		})
	}
}
