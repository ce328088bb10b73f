package storage

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DownloadHandler serves the files behind the links DownloadURL hands
// out. Links without a valid expiry, or past it, are refused.
func DownloadHandler(store *FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relPath := strings.TrimPrefix(r.URL.Path, "/files/")

		expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
		if err != nil {
			http.Error(w, "missing or invalid expiry", http.StatusBadRequest)
			return
		}
		if time.Now().UTC().Unix() > expires {
			http.Error(w, "download link expired", http.StatusGone)
			return
		}

		data, err := store.Read(relPath)
		if err != nil {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}
