package httpapi

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/romanqed/qjazz/job"
)

// resolveDownload asks the executor for a signed download link and
// validates it against the gateway's DownloadConfig, shared by the GET
// and HEAD handlers.
func (h *handlers) resolveDownload(w http.ResponseWriter, r *http.Request) (job.Link, string, bool) {
	jobID := chi.URLParam(r, "id")
	resource := chi.URLParam(r, "resource")
	realm := RealmFromContext(r.Context())

	link, err := h.cfg.Executor.DownloadURL(r.Context(), jobID, realm, resource)
	if err != nil {
		writeError(w, err)
		return job.Link{}, "", false
	}
	u, err := url.Parse(link.Href)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "malformed download link", "")
		return job.Link{}, "", false
	}
	switch u.Scheme {
	case "file":
		path := filepath.Clean(u.Path)
		if h.cfg.Download.FileRoot != "" {
			root := filepath.Clean(h.cfg.Download.FileRoot)
			if !strings.HasPrefix(path, root+string(filepath.Separator)) && path != root {
				writeProblem(w, http.StatusForbidden, "resource outside allowed root", "")
				return job.Link{}, "", false
			}
		}
		return link, path, true
	case "https":
		return link, u.String(), true
	case "http":
		if !h.cfg.Download.AllowInsecureConnection {
			writeProblem(w, http.StatusForbidden, "insecure download scheme disabled", "")
			return job.Link{}, "", false
		}
		return link, u.String(), true
	default:
		writeProblem(w, http.StatusInternalServerError, "unsupported download scheme", u.Scheme)
		return job.Link{}, "", false
	}
}

func (h *handlers) downloadFile(w http.ResponseWriter, r *http.Request) {
	link, target, ok := h.resolveDownload(w, r)
	if !ok {
		return
	}
	href, _ := url.Parse(link.Href)

	if link.MimeType != "" {
		w.Header().Set("Content-Type", link.MimeType)
	}

	switch href.Scheme {
	case "file":
		h.streamFile(w, r, target, link)
	default:
		h.proxyStream(w, r, target, false)
	}
}

func (h *handlers) headFile(w http.ResponseWriter, r *http.Request) {
	link, target, ok := h.resolveDownload(w, r)
	if !ok {
		return
	}
	href, _ := url.Parse(link.Href)

	if link.MimeType != "" {
		w.Header().Set("Content-Type", link.MimeType)
	}

	switch href.Scheme {
	case "file":
		info, err := os.Stat(target)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "resource not found", "")
			return
		}
		w.Header().Set("Content-Length", itoa(info.Size()))
		w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
	default:
		h.proxyStream(w, r, target, true)
	}
}

// streamFile serves a file:// download in fixed-size chunks via
// io.Copy, after the confinement check already performed by
// resolveDownload.
func (h *handlers) streamFile(w http.ResponseWriter, r *http.Request, path string, link job.Link) {
	f, err := os.Open(path)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "resource not found", "")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "cannot stat resource", "")
		return
	}
	w.Header().Set("Content-Length", itoa(info.Size()))
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// proxyStream relays an http(s):// download to the client, chunked.
func (h *handlers) proxyStream(w http.ResponseWriter, r *http.Request, target string, headOnly bool) {
	method := http.MethodGet
	if headOnly {
		method = http.MethodHead
	}
	req, err := http.NewRequestWithContext(r.Context(), method, target, nil)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "cannot build upstream request", "")
		return
	}
	client := h.downloadClient()
	resp, err := client.Do(req)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "upstream download failed", err.Error())
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if !headOnly {
		_, _ = io.Copy(w, resp.Body)
	}
}

func (h *handlers) downloadClient() *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: h.cfg.Download.InsecureSkipVerify}, //nolint:gosec
	}
	return &http.Client{Transport: transport, Timeout: 5 * time.Minute}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
