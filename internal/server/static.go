package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// StaticHandler serves the built frontend with an index.html fallback so client-side
// routes like /profile resolve after a full page load.
type StaticHandler struct {
	dist string
}

// NewStaticHandler creates a handler serving the frontend build directory.
func NewStaticHandler(dist string) *StaticHandler {
	return &StaticHandler{dist: dist}
}

// Routes returns the catch-all pattern; API routes are matched first by the mux.
func (h *StaticHandler) Routes() []string {
	return []string{"/"}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	index := filepath.Join(h.dist, "index.html")
	if _, err := os.Stat(index); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"error": "Frontend not found. Did you run 'npm run build'?",
		})
		return
	}

	requested := filepath.Join(h.dist, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(requested); err == nil && !info.IsDir() {
		http.ServeFile(w, r, requested)
		return
	}

	http.ServeFile(w, r, index)
}
