// Package pipeline orchestrates one log retrieval end to end: resolve the
// connection spec, resolve the requested date, locate the remote file over
// one session, fetch it over a second session, and decide on archival. The
// caller owns the returned artifact and deletes it once the response has
// been sent or has failed.
package pipeline

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"logvault/internal/archive"
	"logvault/internal/locator"
	"logvault/internal/logdate"
	"logvault/internal/logutil"
	"logvault/internal/registry"
	"logvault/internal/transport"
)

// Options configures a retrieval service. All fields are request-independent.
type Options struct {
	RegistryPath    string
	CredentialsPath string
	TempDir         string

	KeyPath       string
	PreferKeyAuth bool

	Strategy         locator.Strategy
	ConnectTimeout   time.Duration
	ArchiveThreshold int64
}

// Service performs log retrievals. It holds no per-request state; the
// registry files are re-read on every call, so edits take effect without a
// restart.
type Service struct {
	opts Options
}

// New creates a retrieval service.
func New(opts Options) *Service {
	return &Service{opts: opts}
}

// resolver loads both registries and builds a resolver over them.
func (s *Service) resolver() (*registry.Resolver, error) {
	reg, err := registry.LoadRegistry(s.opts.RegistryPath)
	if err != nil {
		return nil, err
	}
	creds, err := registry.LoadCredentials(s.opts.CredentialsPath)
	if err != nil {
		return nil, err
	}
	return &registry.Resolver{
		Registry:    reg,
		Credentials: creds,
		KeyPath:     s.opts.KeyPath,
		PreferKey:   s.opts.PreferKeyAuth,
	}, nil
}

// Projects lists the known project names in registry order.
func (s *Service) Projects() ([]string, error) {
	reg, err := registry.LoadRegistry(s.opts.RegistryPath)
	if err != nil {
		return nil, err
	}
	return reg.ProjectNames(), nil
}

// Modules lists the module names of a project in registry order. The
// boolean reports whether the project exists.
func (s *Service) Modules(project string) ([]string, bool, error) {
	reg, err := registry.LoadRegistry(s.opts.RegistryPath)
	if err != nil {
		return nil, false, err
	}
	names, ok := reg.ModuleNames(project)
	return names, ok, nil
}

// Result is the outcome of one retrieval. Host is filled in as soon as
// resolution succeeds, so callers can attribute failures past that point
// to the remote host in the activity trail.
type Result struct {
	Artifact archive.Artifact
	Host     string
}

// Retrieve fetches the latest (or the given date's) log for
// (project, module) to local transient storage and returns the resulting
// artifact together with the resolved host. overrideUser optionally
// supplies the SSH user when neither the module nor the credential entry
// names one. Errors carry the taxonomy types from internal/faults; remote
// failure detail is logged here, never with credentials.
func (s *Service) Retrieve(project, module, dateRaw, overrideUser string) (Result, error) {
	var res Result

	resolver, err := s.resolver()
	if err != nil {
		return res, err
	}
	spec, err := resolver.Resolve(project, module, overrideUser)
	if err != nil {
		return res, err
	}
	res.Host = spec.Host

	var date *logdate.Date
	if dateRaw != "" {
		d, err := logdate.Resolve(dateRaw)
		if err != nil {
			return res, err
		}
		date = &d
	}

	handle, err := s.locate(spec, date)
	if err != nil {
		return res, err
	}
	log.Printf("[pipeline] located %s for %s/%s on %s",
		logutil.SanitizeForLog(handle.Path), logutil.SanitizeForLog(project),
		logutil.SanitizeForLog(module), spec.Host)

	localPath, err := s.fetch(spec, handle)
	if err != nil {
		return res, err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		os.Remove(localPath)
		return res, fmt.Errorf("stat fetched file: %w", err)
	}

	artifact, err := archive.Decide(localPath, info.Size(), s.opts.ArchiveThreshold)
	if err != nil {
		os.Remove(localPath)
		return res, err
	}
	res.Artifact = artifact
	return res, nil
}

// locate opens a session for the single locate operation and closes it on
// every path.
func (s *Service) locate(spec registry.ConnectionSpec, date *logdate.Date) (locator.Handle, error) {
	sess, err := transport.Open(spec.Host, spec.User, spec.Auth, s.opts.ConnectTimeout)
	if err != nil {
		return locator.Handle{}, err
	}
	defer sess.CloseQuietly()
	return s.opts.Strategy.Locate(sess, spec, date)
}

// fetch opens a second session and copies the remote file to a uniquely
// named path under the temp directory. Concurrent requests can never
// collide: the name embeds a fresh UUID. On failure no local file remains.
func (s *Service) fetch(spec registry.ConnectionSpec, handle locator.Handle) (string, error) {
	localPath := filepath.Join(s.opts.TempDir,
		fmt.Sprintf("%s_%s", uuid.NewString(), path.Base(handle.Path)))

	sess, err := transport.Open(spec.Host, spec.User, spec.Auth, s.opts.ConnectTimeout)
	if err != nil {
		return "", err
	}
	defer sess.CloseQuietly()

	if err := sess.Fetch(handle.Path, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}
