package internal

import (
	"chat-relay/infrastructure/storage"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const defaultInspectPrefix = "thread:"

type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []storage.Record
	Stats  map[string]any
}

// NewDebugServer serves a read-only HTML view of the Badger store on endpoint.
// ?prefix= narrows the scan, e.g. "msg:room:general:".
func NewDebugServer(log *slog.Logger, db *badger.DB, addr, endpoint string, stats StatsProvider) *http.Server {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	mux := http.NewServeMux()

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultInspectPrefix
		}

		data := PageData{Prefix: prefix, Stats: make(map[string]any)}
		if stats != nil {
			data.Stats = stats()
		}

		err := storage.ScanRecords(db, prefix, func(record storage.Record, err error) {
			if err != nil {
				record.Detail = fmt.Sprintf("Error: %v", err)
			}
			data.Items = append(data.Items, record)
		})
		if err != nil {
			log.Warn("Debug scan failed", "prefix", prefix, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			log.Warn("Debug page rendering failed", "error", err)
		}
	})

	return &http.Server{Addr: addr, Handler: mux}
}
