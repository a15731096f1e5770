package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

const harnessStyle = `body { font-family: system-ui, -apple-system, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
.container { max-width: 1200px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
h1 { color: #333; border-bottom: 2px solid #007acc; padding-bottom: 10px; }
.meta { font-size: 12px; color: #666; }
textarea { width: 100%; min-height: 160px; font-family: monospace; box-sizing: border-box; }
pre { background: #fafafa; border: 1px solid #ddd; padding: 10px; white-space: pre-wrap; word-break: break-all; }
#preview { border: 1px solid #ddd; padding: 10px; min-height: 40px; }
.error { color: #b00020; font-weight: bold; }`

// harnessScript parses the textarea on every edit and reloads when the
// server publishes a new bundle, or when the greeting shows the page is
// stale. The text survives reloads.
const harnessScript = `(function(){
var tf = window.s9e && window.s9e.TextFormatter;
var text = document.getElementById('text');
var saved = sessionStorage.getItem('markupc-text');
if (saved !== null) { text.value = saved; }
function update() {
	sessionStorage.setItem('markupc-text', text.value);
	if (!tf || !tf.parse) { return; }
	document.getElementById('xml').textContent = tf.parse(text.value);
	if (tf.preview) { tf.preview(text.value, document.getElementById('preview')); }
}
text.addEventListener('input', update);
update();
var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = function(e) {
	var m = JSON.parse(e.data);
	if (m.type === 'hello' && (m.version || 0) !== (+document.body.dataset.version || 0)) { location.reload(); }
	if (m.type === 'reload') { location.reload(); }
	if (m.type === 'error') { document.getElementById('status').textContent = m.message; }
};
})();`

// harnessPage describes one rendering of the harness.
type harnessPage struct {
	Exports   []string
	Version   int
	Size      int
	GzipSize  int
	BuildErr  error
	HasBundle bool
}

// harness renders the page that loads /bundle.js and exercises it.
func harness(p harnessPage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>markupc preview</title>\n<style>")
		b.WriteString(harnessStyle)
		b.WriteString("</style>\n</head>\n")
		fmt.Fprintf(&b, "<body data-version=\"%d\">\n<div class=\"container\">\n<h1>markupc preview</h1>\n", p.Version)

		if p.HasBundle {
			fmt.Fprintf(&b, "<p class=\"meta\">bundle v%d, %s (%s gzipped), exports: %s</p>\n",
				p.Version,
				templ.EscapeString(humanize.Bytes(uint64(p.Size))),
				templ.EscapeString(humanize.Bytes(uint64(p.GzipSize))),
				templ.EscapeString(strings.Join(p.Exports, ", ")))
		} else {
			b.WriteString("<p class=\"meta\">no bundle built yet</p>\n")
		}

		b.WriteString("<p id=\"status\" class=\"error\">")
		if p.BuildErr != nil {
			b.WriteString(templ.EscapeString(p.BuildErr.Error()))
		}
		b.WriteString("</p>\n")

		b.WriteString("<textarea id=\"text\">[b]Hello[/b] world</textarea>\n")
		b.WriteString("<h2>Preview</h2>\n<div id=\"preview\"></div>\n")
		b.WriteString("<h2>Parsed XML</h2>\n<pre id=\"xml\"></pre>\n</div>\n")
		if p.HasBundle {
			b.WriteString("<script src=\"/bundle.js\"></script>\n")
		}
		b.WriteString("<script>")
		b.WriteString(harnessScript)
		b.WriteString("</script>\n</body>\n</html>\n")

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.bundleMutex.RLock()
	page := harnessPage{
		Exports:   s.exports,
		Version:   s.version,
		Size:      s.stats.Size,
		GzipSize:  s.stats.GzipSize,
		BuildErr:  s.buildErr,
		HasBundle: s.version > 0,
	}
	s.bundleMutex.RUnlock()

	templ.Handler(harness(page)).ServeHTTP(w, r)
}

func (s *PreviewServer) handleBundle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bundle, _, version, buildErr := s.snapshot()
	if version == 0 {
		msg := "no bundle built yet"
		if buildErr != nil {
			msg = buildErr.Error()
		}
		http.Error(w, msg, http.StatusServiceUnavailable)
		return
	}

	etag := fmt.Sprintf("\"v%d\"", version)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Content-Length", fmt.Sprint(len(bundle)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, bundle)
}

// healthResponse is the body of /health.
type healthResponse struct {
	Status    string        `json:"status"`
	Version   int           `json:"version"`
	Exports   []string      `json:"exports"`
	Clients   int           `json:"clients"`
	BuildErr  string        `json:"build_error,omitempty"`
	BuiltAt   *time.Time    `json:"built_at,omitempty"`
	Size      int           `json:"size"`
	GzipSize  int           `json:"gzip_size"`
	Bindings  int           `json:"bindings"`
	Functions int           `json:"functions"`
	Builds    *buildMetrics `json:"builds,omitempty"`
}

type buildMetrics struct {
	Total           int64         `json:"total"`
	Successful      int64         `json:"successful"`
	Failed          int64         `json:"failed"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	AverageDuration time.Duration `json:"average_duration_ns"`
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.bundleMutex.RLock()
	resp := healthResponse{
		Status:    "ok",
		Version:   s.version,
		Exports:   s.exports,
		Size:      s.stats.Size,
		GzipSize:  s.stats.GzipSize,
		Bindings:  s.stats.Bindings,
		Functions: s.stats.Functions,
	}
	if s.buildErr != nil {
		resp.Status = "failing"
		resp.BuildErr = s.buildErr.Error()
	}
	if !s.builtAt.IsZero() {
		builtAt := s.builtAt
		resp.BuiltAt = &builtAt
	}
	metrics := s.metrics
	s.bundleMutex.RUnlock()

	if resp.Exports == nil {
		resp.Exports = []string{}
	}
	resp.Clients = s.ClientCount()

	if metrics != nil {
		snap := metrics.GetSnapshot()
		resp.Builds = &buildMetrics{
			Total:           snap.TotalBuilds,
			Successful:      snap.SuccessfulBuilds,
			Failed:          snap.FailedBuilds,
			CacheHitRate:    metrics.GetCacheHitRate(),
			AverageDuration: snap.AverageDuration,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error(r.Context(), err, "cannot encode health response")
	}
}
