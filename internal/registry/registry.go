// Package registry loads the declarative project/module registry and the
// optional credential registry, and resolves one ConnectionSpec per
// (project, module) request.
//
// Two file formats carry the same schema: the XML layout shared with the
// remote-side tooling (config.xml / credentials.xml), and a YAML rendition
// for deployments that keep their config in YAML. The format is picked by
// file extension. Loading is cheap and performed per request; callers get no
// caching and need none.
package registry

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ModuleConfig describes where one module's logs live. Host and User may be
// empty, in which case they are filled from the project's credential entry
// (or a caller-supplied override) during resolution.
type ModuleConfig struct {
	Host         string
	User         string
	RemoteDir    string
	FilenameBase string
}

// Module pairs a module name with its configuration.
type Module struct {
	Name   string
	Config ModuleConfig
}

// Project is a named, ordered collection of modules.
type Project struct {
	Name    string
	Modules []Module
}

// Registry is the ordered project → module → config mapping. Names are
// unique within each level; the first occurrence wins on duplicates.
type Registry struct {
	Projects []Project
}

// ProjectNames returns project names in registry order.
func (r *Registry) ProjectNames() []string {
	names := make([]string, 0, len(r.Projects))
	for _, p := range r.Projects {
		names = append(names, p.Name)
	}
	return names
}

// ModuleNames returns module names for a project in registry order, and
// whether the project exists.
func (r *Registry) ModuleNames(project string) ([]string, bool) {
	for _, p := range r.Projects {
		if p.Name != project {
			continue
		}
		names := make([]string, 0, len(p.Modules))
		for _, m := range p.Modules {
			names = append(names, m.Name)
		}
		return names, true
	}
	return nil, false
}

// lookup returns the module config for (project, module). The booleans
// distinguish "unknown project" from "unknown module".
func (r *Registry) lookup(project, module string) (cfg ModuleConfig, projectOK, moduleOK bool) {
	for _, p := range r.Projects {
		if p.Name != project {
			continue
		}
		for _, m := range p.Modules {
			if m.Name == module {
				return m.Config, true, true
			}
		}
		return ModuleConfig{}, true, false
	}
	return ModuleConfig{}, false, false
}

// CredentialEntry holds per-project connection credentials. Values here are
// fallbacks for module-level host/user, never overrides.
type CredentialEntry struct {
	Host     string
	User     string
	Password string
}

// Credentials maps project name to its credential entry.
type Credentials map[string]CredentialEntry

// --- XML schema ---

type xmlRegistry struct {
	Projects []struct {
		Name    string `xml:"name,attr"`
		Modules []struct {
			Name   string `xml:"name,attr"`
			Server string `xml:"server,attr"`
			User   string `xml:"user,attr"`
			Path   string `xml:"path,attr"`
			Base   string `xml:"base,attr"`
		} `xml:"module"`
	} `xml:"project"`
}

type xmlCredentials struct {
	Projects []struct {
		Name   string `xml:"name,attr"`
		Server struct {
			Host     string `xml:"host,attr"`
			User     string `xml:"user,attr"`
			Password string `xml:"password,attr"`
		} `xml:"server"`
	} `xml:"project"`
}

// --- YAML schema ---

type yamlRegistry struct {
	Projects []struct {
		Name    string `yaml:"name"`
		Modules []struct {
			Name string `yaml:"name"`
			Host string `yaml:"host"`
			User string `yaml:"user"`
			Dir  string `yaml:"dir"`
			Base string `yaml:"base"`
		} `yaml:"modules"`
	} `yaml:"projects"`
}

type yamlCredentials struct {
	Projects []struct {
		Name     string `yaml:"name"`
		Host     string `yaml:"host"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"projects"`
}

// LoadRegistry reads the project/module registry from path. Files ending in
// .yaml or .yml are parsed as YAML; anything else as XML.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	reg := &Registry{}
	seen := make(map[string]bool)

	add := func(project string, modules []Module) {
		if seen[project] {
			return
		}
		seen[project] = true
		reg.Projects = append(reg.Projects, Project{Name: project, Modules: modules})
	}

	if isYAML(path) {
		var doc yamlRegistry
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse registry %s: %w", path, err)
		}
		for _, p := range doc.Projects {
			var mods []Module
			dup := make(map[string]bool)
			for _, m := range p.Modules {
				if dup[m.Name] {
					continue
				}
				dup[m.Name] = true
				mods = append(mods, Module{Name: m.Name, Config: ModuleConfig{
					Host:         m.Host,
					User:         m.User,
					RemoteDir:    m.Dir,
					FilenameBase: m.Base,
				}})
			}
			add(p.Name, mods)
		}
		return reg, nil
	}

	var doc xmlRegistry
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	for _, p := range doc.Projects {
		var mods []Module
		dup := make(map[string]bool)
		for _, m := range p.Modules {
			if dup[m.Name] {
				continue
			}
			dup[m.Name] = true
			mods = append(mods, Module{Name: m.Name, Config: ModuleConfig{
				Host:         m.Server,
				User:         m.User,
				RemoteDir:    m.Path,
				FilenameBase: m.Base,
			}})
		}
		add(p.Name, mods)
	}
	return reg, nil
}

// LoadCredentials reads the credential registry from path. A missing file is
// not an error: the service then relies on module-level host/user and
// key/agent authentication.
func LoadCredentials(path string) (Credentials, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}

	creds := make(Credentials)

	if isYAML(path) {
		var doc yamlCredentials
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse credentials %s: %w", path, err)
		}
		for _, p := range doc.Projects {
			if _, ok := creds[p.Name]; ok {
				continue
			}
			creds[p.Name] = CredentialEntry{Host: p.Host, User: p.User, Password: p.Password}
		}
		return creds, nil
	}

	var doc xmlCredentials
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	for _, p := range doc.Projects {
		if _, ok := creds[p.Name]; ok {
			continue
		}
		creds[p.Name] = CredentialEntry{
			Host:     p.Server.Host,
			User:     p.Server.User,
			Password: p.Server.Password,
		}
	}
	return creds, nil
}

func isYAML(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
