// Package ollama is a minimal read-only client for the Ollama REST API.
// It covers only the three endpoints the exporter polls: /api/version,
// /api/tags (installed models) and /api/ps (loaded models).
//
// Transport errors, non-2xx statuses and timeouts all surface as a plain
// error: callers treat every upstream failure identically, so the client
// does not distinguish them beyond the error text.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	versionPath = "/api/version"
	tagsPath    = "/api/tags"
	psPath      = "/api/ps"
)

// ModelDetails carries the optional metadata block of an installed model.
// Ollama sometimes omits the whole object or individual fields.
type ModelDetails struct {
	Family            string `json:"family"`
	Format            string `json:"format"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
	ParentModel       string `json:"parent_model"`
}

// Model is one entry of the installed-model inventory (/api/tags).
type Model struct {
	Name       string       `json:"name"`
	Size       int64        `json:"size"`
	ModifiedAt string       `json:"modified_at"`
	Details    ModelDetails `json:"details"`
}

// RunningModel is one entry of the loaded-model list (/api/ps).
type RunningModel struct {
	Name     string `json:"name"`
	SizeVRAM int64  `json:"size_vram"`
}

// Client issues GET requests against a single Ollama server.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New builds a client for the given host:port. Every request is bounded by
// the supplied timeout; a timed-out call returns an error like any other
// upstream failure.
func New(host string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: "http://" + host,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Version fetches the server version string. A successful call doubles as
// the exporter's upstream health probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, versionPath, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// ListModels fetches the installed-model inventory.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out struct {
		Models []Model `json:"models"`
	}
	if err := c.getJSON(ctx, tagsPath, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ListRunning fetches the models currently resident in memory.
func (c *Client) ListRunning(ctx context.Context) ([]RunningModel, error) {
	var out struct {
		Models []RunningModel `json:"models"`
	}
	if err := c.getJSON(ctx, psPath, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("url", url).Msg("upstream request")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("get %s: decode response: %w", url, err)
	}
	return nil
}
