// Package uploads serves stored blobs over HTTP.
package uploads

import (
	"net/http"
	"strings"

	"github.com/rus-sharafiev/go-rest-common/exception"
)

type Server struct {
	Dir    string
	Prefix string
}

func (s Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		exception.MethodNotAllowed(w)
		return
	}
	// No directory listings.
	if strings.HasSuffix(r.URL.Path, "/") {
		http.NotFound(w, r)
		return
	}

	w.Header().Add("Cache-Control", "private, max-age=31536000, immutable")
	http.StripPrefix(s.Prefix, http.FileServer(http.Dir(s.Dir))).ServeHTTP(w, r)
}
