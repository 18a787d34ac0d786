package blogpage

import (
	_ "embed"
	"net/http"
)

// ClientLibraryPath is where pages load the browser client from
const ClientLibraryPath = "/blogpage-client.js"

//go:embed client/blogpage-client.js
var clientLibrary []byte

// ServeClientLibrary serves the browser client that forwards data-lvt-action
// clicks and applies the returned patches
func ServeClientLibrary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(clientLibrary)
}
