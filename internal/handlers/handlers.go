// Package handlers is the HTTP front end: it translates the retrieval
// core's typed results into responses and owns artifact deletion after the
// response body has been sent.
package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"logvault/internal/audit"
	"logvault/internal/faults"
	"logvault/internal/logutil"
	"logvault/internal/pipeline"
)

// API bundles the handlers' dependencies. Everything is injected at
// construction; there is no package-level state.
type API struct {
	Svc     *pipeline.Service
	Auditor *audit.Auditor
}

// ListProjects responds with the known project names.
func (api *API) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := api.Svc.Projects()
	if err != nil {
		log.Printf("[handlers] list projects: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load project registry")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"projects": projects})
}

// ListModules responds with the module names of one project.
func (api *API) ListModules(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	modules, ok, err := api.Svc.Modules(project)
	if err != nil {
		log.Printf("[handlers] list modules: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load project registry")
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string][]string{"modules": {}})
		return
	}
	if modules == nil {
		modules = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"modules": modules})
}

// DownloadLog retrieves the requested log artifact and streams it as an
// attachment. The artifact is deleted once the response has been written,
// whether or not the write succeeded.
func (api *API) DownloadLog(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	module := r.URL.Query().Get("module")
	date := r.URL.Query().Get("date")
	overrideUser := r.URL.Query().Get("user")
	sourceIP := audit.ExtractSourceIP(r)

	if project == "" || module == "" {
		writeError(w, http.StatusBadRequest, "project and module required")
		return
	}

	api.log(audit.Entry{
		Project: project, Module: module,
		EventType: audit.EventRequestReceived, SourceIP: sourceIP,
		Details: detailDate(date),
	})

	start := time.Now()
	result, err := api.Svc.Retrieve(project, module, date, overrideUser)
	if err != nil {
		api.failRequest(w, project, module, result.Host, sourceIP, err)
		return
	}
	artifact := result.Artifact
	defer func() {
		if err := os.Remove(artifact.Path); err != nil {
			log.Printf("[handlers] remove artifact %s: %v", artifact.Path, err)
		}
	}()

	name := downloadName(artifact.Path)
	log.Printf("[handlers] serving %s for %s/%s (archive=%v, took %s)",
		logutil.SanitizeForLog(name), logutil.SanitizeForLog(project),
		logutil.SanitizeForLog(module), artifact.IsArchive, time.Since(start))

	f, err := os.Open(artifact.Path)
	if err != nil {
		log.Printf("[handlers] open artifact: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read fetched log")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Printf("[handlers] stat artifact: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read fetched log")
		return
	}

	api.log(audit.Entry{
		Project: project, Module: module, Host: result.Host,
		EventType: audit.EventArtifactServed, SourceIP: sourceIP,
		Details: fmt.Sprintf("file=%s size=%d archive=%v", name, info.Size(), artifact.IsArchive),
	})

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if _, err := io.Copy(w, f); err != nil {
		// The client went away mid-transfer; the deferred remove still runs.
		log.Printf("[handlers] send artifact: %v", err)
	}
}

// failRequest maps a retrieval error onto an HTTP response and records it.
// host is empty when the failure precedes resolution.
func (api *API) failRequest(w http.ResponseWriter, project, module, host, sourceIP string, err error) {
	switch {
	case faults.IsInvalidDate(err):
		api.log(audit.Entry{Project: project, Module: module, Host: host,
			EventType: audit.EventInvalidRequest, SourceIP: sourceIP, Details: err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
	case faults.IsConfiguration(err):
		api.log(audit.Entry{Project: project, Module: module, Host: host,
			EventType: audit.EventInvalidRequest, SourceIP: sourceIP, Details: err.Error()})
		writeError(w, http.StatusNotFound, err.Error())
	case faults.IsNotFound(err):
		api.log(audit.Entry{Project: project, Module: module, Host: host,
			EventType: audit.EventNoMatch, SourceIP: sourceIP, Details: err.Error()})
		writeError(w, http.StatusNotFound, "no matching log file found")
	case faults.IsTransport(err):
		// Full detail goes to the logs; the caller gets an opaque failure.
		log.Printf("[handlers] transport failure for %s/%s: %v",
			logutil.SanitizeForLog(project), logutil.SanitizeForLog(module), err)
		api.log(audit.Entry{Project: project, Module: module, Host: host,
			EventType: audit.EventRequestFailed, SourceIP: sourceIP, Details: "transport failure"})
		writeError(w, http.StatusBadGateway, "error accessing remote logs")
	default:
		log.Printf("[handlers] retrieval failed for %s/%s: %v",
			logutil.SanitizeForLog(project), logutil.SanitizeForLog(module), err)
		api.log(audit.Entry{Project: project, Module: module, Host: host,
			EventType: audit.EventRequestFailed, SourceIP: sourceIP, Details: "internal error"})
		writeError(w, http.StatusInternalServerError, "failed to retrieve log")
	}
}

// ListActivity responds with filtered activity log rows.
func (api *API) ListActivity(w http.ResponseWriter, r *http.Request) {
	if api.Auditor == nil {
		writeError(w, http.StatusServiceUnavailable, "activity log not available")
		return
	}

	opts := audit.QueryOptions{
		Project:   r.URL.Query().Get("project"),
		Module:    r.URL.Query().Get("module"),
		EventType: r.URL.Query().Get("event"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}

	result, err := api.Auditor.Query(opts)
	if err != nil {
		log.Printf("[handlers] activity query: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query activity log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HealthCheck reports basic liveness and whether the registry loads.
func (api *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	registryStatus := "ok"
	if _, err := api.Svc.Projects(); err != nil {
		status = "unhealthy"
		registryStatus = "unreadable"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"registry": registryStatus,
	})
}

// log records an activity entry when an auditor is configured.
func (api *API) log(entry audit.Entry) {
	if api.Auditor != nil {
		api.Auditor.Log(entry)
	}
}

// downloadName strips the uniqueness prefix from a temp artifact name,
// restoring the remote basename the caller expects.
func downloadName(artifactPath string) string {
	base := filepath.Base(artifactPath)
	if idx := strings.Index(base, "_"); idx >= 0 && idx < len(base)-1 {
		return base[idx+1:]
	}
	return base
}

func detailDate(date string) string {
	if date == "" {
		return "date=latest"
	}
	return "date=" + logutil.SanitizeForLog(date)
}
