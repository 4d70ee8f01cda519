package tools

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeforge/assistant/runtime/apperr"
)

// webSearchTool is an external_api tool: gated off in offline mode
// (spec.md §4.1, §8 property 7). It delegates to a pluggable search
// function so the HTTP provider (e.g. a hosted search API) stays outside
// this package's import graph.
type webSearchTool struct {
	search func(ctx context.Context, query string) (any, error)
}

// NewWebSearchTool builds the web_search tool around a caller-supplied
// search function (the concrete provider is wired at cmd/assistant-server
// startup, keeping this package provider-agnostic).
func NewWebSearchTool(search func(ctx context.Context, query string) (any, error)) Tool {
	return webSearchTool{search: search}
}

func (webSearchTool) Name() string             { return "web_search" }
func (webSearchTool) Category() Category       { return CategoryWeb }
func (webSearchTool) NetworkType() NetworkType { return NetworkExternalAPI }
func (webSearchTool) ParametersSchema() []byte {
	return []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"query": {"type": "string"}},
  "required": ["query"],
  "additionalProperties": true
}`)
}

func (t webSearchTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	query, _ := params["query"].(string)
	out, err := t.search(ctx, query)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}
	return Result{Success: true, Output: out}, nil
}

// httpRequestTool issues a bounded outbound HTTP request. external_api:
// gated off in offline mode.
type httpRequestTool struct {
	client *http.Client
}

// NewHTTPRequestTool builds the http_request tool.
func NewHTTPRequestTool(client *http.Client) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	return httpRequestTool{client: client}
}

func (httpRequestTool) Name() string             { return "http_request" }
func (httpRequestTool) Category() Category       { return CategoryWeb }
func (httpRequestTool) NetworkType() NetworkType { return NetworkExternalAPI }
func (httpRequestTool) ParametersSchema() []byte {
	return []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "method": {"type": "string", "default": "GET"},
    "body": {"type": "string"}
  },
  "required": ["url"],
  "additionalProperties": true
}`)
}

func (t httpRequestTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	url, _ := params["url"].(string)
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	body, _ := params["body"].(string)

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindInvalidInput, "invalid_params", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindTransient, "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindTransient, "read failed", err)
	}
	return Result{Success: resp.StatusCode < 400, Output: map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(data),
	}}, nil
}

// downloadFileTool fetches a URL into the session workspace. Classified
// external_download, not external_api: spec.md §4.1 treats one-way ingress
// as safe in offline mode because it cannot exfiltrate local data, so this
// tool remains available when NETWORK_MODE=offline.
type downloadFileTool struct {
	client  *http.Client
	workDir string
}

// NewDownloadFileTool builds the download_file tool rooted at workDir (the
// session's bound workspace directory).
func NewDownloadFileTool(client *http.Client, workDir string) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	return downloadFileTool{client: client, workDir: workDir}
}

func (downloadFileTool) Name() string             { return "download_file" }
func (downloadFileTool) Category() Category       { return CategoryWeb }
func (downloadFileTool) NetworkType() NetworkType { return NetworkExternalDownload }
func (downloadFileTool) ParametersSchema() []byte {
	return []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "relative_path": {"type": "string"}
  },
  "required": ["url", "relative_path"],
  "additionalProperties": true
}`)
}

func (t downloadFileTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	url, _ := params["url"].(string)
	relPath, _ := params["relative_path"].(string)
	if strings.Contains(relPath, "..") {
		return Result{}, apperr.New(apperr.KindIntegrity, "path escapes workspace root: "+relPath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindInvalidInput, "invalid_params", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindTransient, "download failed", err)
	}
	defer resp.Body.Close()

	dest := filepath.Join(t.workDir, filepath.Clean("/"+relPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindPermanent, "mkdir failed", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindPermanent, "create failed", err)
	}
	defer f.Close()
	n, err := io.Copy(f, io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Result{Success: false, Error: err.Error()}, apperr.Wrap(apperr.KindTransient, "write failed", err)
	}
	return Result{Success: true, Output: map[string]any{"relative_path": relPath, "bytes_written": n}}, nil
}
