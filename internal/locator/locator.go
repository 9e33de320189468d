// Package locator finds the one remote log file a request refers to. Two
// interchangeable discovery strategies exist, selected by deployment
// configuration: listing the directory and ranking candidates by stat
// mtime, or running a remote shell glob sorted by mtime. Both treat "zero
// matching files" as NotFound, never as a transport fault.
package locator

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"logvault/internal/faults"
	"logvault/internal/logdate"
	"logvault/internal/registry"
	"logvault/internal/transport"
)

// Handle identifies exactly one file on the remote filesystem. Size is
// populated only when the discovery strategy naturally exposes it.
type Handle struct {
	Path      string
	Size      int64
	SizeKnown bool
}

// Strategy locates the log file for a connection spec and optional date.
type Strategy interface {
	Locate(s *transport.Session, spec registry.ConnectionSpec, date *logdate.Date) (Handle, error)
}

// ForName returns the strategy registered under name: "sftp" for
// listing+stat, "shell" for remote-glob+sort.
func ForName(name string) (Strategy, error) {
	switch name {
	case "sftp":
		return StatStrategy{}, nil
	case "shell":
		return GlobStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown locate strategy %q (want sftp or shell)", name)
	}
}

// datedPrefix builds the exact filename prefix for a dated lookup. Rotated
// logs append suffixes (rotation index, .gz), so prefix matching is correct.
func datedPrefix(base string, date *logdate.Date) string {
	return fmt.Sprintf("%s-%s.log", base, date.RemoteLabel())
}

// StatStrategy lists the remote directory over SFTP and picks the matching
// candidate with the newest modification time. Ties break on lexical
// filename order so repeated calls against an unchanged directory return
// the same handle.
type StatStrategy struct{}

func (StatStrategy) Locate(s *transport.Session, spec registry.ConnectionSpec, date *logdate.Date) (Handle, error) {
	infos, err := s.List(spec.RemoteDir)
	if err != nil {
		return Handle{}, err
	}

	var matches func(name string) bool
	var pattern string
	if date != nil {
		prefix := datedPrefix(spec.FilenameBase, date)
		pattern = prefix + "*"
		matches = func(name string) bool {
			return strings.HasPrefix(name, prefix)
		}
	} else {
		pattern = spec.FilenameBase + "*.log"
		matches = func(name string) bool {
			return strings.HasPrefix(name, spec.FilenameBase) && strings.HasSuffix(name, ".log")
		}
	}

	type candidate struct {
		name string
		size int64
		mod  int64
	}
	var candidates []candidate
	for _, info := range infos {
		if info.IsDir() || !matches(info.Name()) {
			continue
		}
		candidates = append(candidates, candidate{
			name: info.Name(),
			size: info.Size(),
			mod:  info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return Handle{}, &faults.NotFoundError{Pattern: pattern}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].mod != candidates[j].mod {
			return candidates[i].mod > candidates[j].mod
		}
		return candidates[i].name < candidates[j].name
	})

	best := candidates[0]
	return Handle{
		Path:      path.Join(spec.RemoteDir, best.name),
		Size:      best.size,
		SizeKnown: true,
	}, nil
}

// GlobStrategy runs a remote shell glob sorted by modification time
// descending and takes the first line. The trailing wildcard tolerates
// compressed rotated files (.gz and friends). The glob utility reports "no
// matches" on stderr, which is a legitimate empty result rather than a
// failure.
type GlobStrategy struct{}

func (GlobStrategy) Locate(s *transport.Session, spec registry.ConnectionSpec, date *logdate.Date) (Handle, error) {
	var pattern string
	if date != nil {
		pattern = shellQuote(datedPrefix(spec.FilenameBase, date)) + "*"
	} else {
		pattern = shellQuote(spec.FilenameBase) + "*.log*"
	}
	cmd := fmt.Sprintf("cd %s && ls -t %s", shellQuote(spec.RemoteDir), pattern)

	stdout, stderr, exitCode, err := s.RunCommand(cmd)
	if err != nil {
		return Handle{}, err
	}

	name := firstLine(stdout)
	if name == "" {
		if strings.TrimSpace(stderr) != "" || exitCode == 0 {
			// Empty glob: ls exits non-zero complaining on stderr, or the
			// directory genuinely held nothing.
			return Handle{}, &faults.NotFoundError{Pattern: pattern}
		}
		return Handle{}, faults.NewTransportError("glob", s.Host(),
			fmt.Errorf("exited %d with no output", exitCode))
	}

	return Handle{Path: path.Join(spec.RemoteDir, name)}, nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// shellQuote wraps a string in single quotes, escaping any embedded single
// quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
