package registry

import (
	"fmt"

	"logvault/internal/faults"
)

// AuthMethod is the tagged union of supported SSH authentication methods.
// Exactly one variant is selected during resolution; downstream code never
// needs to know which registry schema produced it.
type AuthMethod interface {
	authMethod()
}

// PasswordAuth authenticates with a plaintext password from the credential
// registry.
type PasswordAuth struct {
	Password string
}

// KeyAuth authenticates with a private key file.
type KeyAuth struct {
	KeyPath string
}

// AgentAuth authenticates with whatever identities the ambient SSH agent
// offers.
type AgentAuth struct{}

func (PasswordAuth) authMethod() {}
func (KeyAuth) authMethod()      {}
func (AgentAuth) authMethod()    {}

// ConnectionSpec is a fully-resolved connection target. Host and User are
// never empty.
type ConnectionSpec struct {
	Host         string
	User         string
	Auth         AuthMethod
	RemoteDir    string
	FilenameBase string
}

// Resolver merges the registry, the optional credential registry, and
// deployment-level auth settings into ConnectionSpecs. It has no state
// beyond its inputs and is safe for concurrent use.
type Resolver struct {
	Registry    *Registry
	Credentials Credentials

	// KeyPath is the deployment-level private key used when key auth is
	// selected. PreferKey flips the precedence when both a password and a
	// key are available; the default favors the password, since a
	// configured password signals explicit intent.
	KeyPath   string
	PreferKey bool
}

// Resolve produces the ConnectionSpec for (project, module). overrideUser,
// when non-empty, is the lowest-precedence source for the SSH user (an
// explicit user passed with the request).
func (r *Resolver) Resolve(project, module, overrideUser string) (ConnectionSpec, error) {
	cfg, projectOK, moduleOK := r.Registry.lookup(project, module)
	if !projectOK {
		return ConnectionSpec{}, &faults.ConfigurationError{Reason: fmt.Sprintf("unknown project %q", project)}
	}
	if !moduleOK {
		return ConnectionSpec{}, &faults.ConfigurationError{Reason: fmt.Sprintf("unknown module %q in project %q", module, project)}
	}

	cred, hasCred := r.Credentials[project]

	host := cfg.Host
	if host == "" && hasCred {
		host = cred.Host
	}
	user := cfg.User
	if user == "" && hasCred {
		user = cred.User
	}
	if user == "" {
		user = overrideUser
	}

	if host == "" {
		return ConnectionSpec{}, &faults.ConfigurationError{Reason: fmt.Sprintf("no host configured for %s/%s", project, module)}
	}
	if user == "" {
		return ConnectionSpec{}, &faults.ConfigurationError{Reason: fmt.Sprintf("no user configured for %s/%s", project, module)}
	}

	auth := r.selectAuth(cred, hasCred)

	return ConnectionSpec{
		Host:         host,
		User:         user,
		Auth:         auth,
		RemoteDir:    cfg.RemoteDir,
		FilenameBase: cfg.FilenameBase,
	}, nil
}

// selectAuth picks exactly one authentication method: the credential
// password, the configured key file, or the ambient agent.
func (r *Resolver) selectAuth(cred CredentialEntry, hasCred bool) AuthMethod {
	hasPassword := hasCred && cred.Password != ""
	hasKey := r.KeyPath != ""

	switch {
	case hasPassword && hasKey:
		if r.PreferKey {
			return KeyAuth{KeyPath: r.KeyPath}
		}
		return PasswordAuth{Password: cred.Password}
	case hasPassword:
		return PasswordAuth{Password: cred.Password}
	case hasKey:
		return KeyAuth{KeyPath: r.KeyPath}
	default:
		return AgentAuth{}
	}
}
