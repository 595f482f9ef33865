// pantry/version/version.go
package version

import (
	"net/http"
	"runtime"

	"github.com/dalemusser/contactrelay/httputil"
	"github.com/go-chi/chi/v5"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/dalemusser/contactrelay/pantry/version.Version=1.0.0 \
//	                   -X github.com/dalemusser/contactrelay/pantry/version.Commit=abc123 \
//	                   -X github.com/dalemusser/contactrelay/pantry/version.BuildTime=2026-01-15T10:30:00Z"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build description served at /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the current build info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Mount attaches GET /version.
func Mount(r chi.Router) {
	info := Get()
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, info)
	})
}

// String is the one-line form printed by the binaries' --version.
func String() string {
	if Version == "dev" {
		return "dev (" + runtime.Version() + ")"
	}
	return Version + " (" + Commit + ", built " + BuildTime + ")"
}
