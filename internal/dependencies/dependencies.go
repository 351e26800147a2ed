// Package dependencies checks the availability of the external services the
// engine talks to: the Ollama host(s) backing the embedding and LLM
// capabilities, and whether each required model is pulled.
package dependencies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tincomking/tinmem/pkg/config"
)

// Status represents the status of an optional dependency.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusMissing     Status = "missing"
)

// DependencyInfo describes the checked state of one provider.
type DependencyInfo struct {
	Name         string
	Status       Status
	Version      string
	URL          string
	Message      string
	Models       []string
	MissingItems []string
}

// CheckResult is the combined status of every provider the engine depends on.
type CheckResult struct {
	Embedding DependencyInfo
	LLM       DependencyInfo
}

// Check probes the embedding and LLM hosts named in cfg and reports whether
// each is reachable and has the configured model available.
func Check(ctx context.Context, cfg *config.Config) *CheckResult {
	return &CheckResult{
		Embedding: checkOllamaModel(ctx, "embedding", cfg.Embedding.BaseURL, cfg.Embedding.Model),
		LLM:       checkOllamaModel(ctx, "llm", cfg.LLM.BaseURL, cfg.LLM.Model),
	}
}

func checkOllamaModel(ctx context.Context, name, baseURL, model string) DependencyInfo {
	info := DependencyInfo{Name: name, URL: baseURL}

	if baseURL == "" {
		info.Status = StatusMissing
		info.Message = "no base URL configured"
		return info
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		info.Status = StatusUnavailable
		info.Message = "failed to build request"
		return info
	}

	resp, err := client.Do(req)
	if err != nil {
		info.Status = StatusMissing
		info.Message = fmt.Sprintf("%s is not reachable", baseURL)
		return info
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		info.Status = StatusUnavailable
		info.Message = fmt.Sprintf("returned status %d", resp.StatusCode)
		return info
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		info.Status = StatusAvailable
		info.Message = "running but could not list models"
		return info
	}

	modelSet := make(map[string]bool, len(tagsResp.Models))
	for _, m := range tagsResp.Models {
		info.Models = append(info.Models, m.Name)
		modelSet[m.Name] = true
		modelSet[strings.Split(m.Name, ":")[0]] = true
	}

	baseName := strings.Split(model, ":")[0]
	if model != "" && !modelSet[model] && !modelSet[baseName] {
		info.MissingItems = append(info.MissingItems, model)
		info.Status = StatusAvailable
		info.Message = fmt.Sprintf("running but missing model %s", model)
		return info
	}

	info.Status = StatusAvailable
	info.Version = getOllamaVersion(ctx, baseURL, client)
	info.Message = "running with required model available"
	return info
}

func getOllamaVersion(ctx context.Context, baseURL string, client *http.Client) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/version", nil)
	if err != nil {
		return ""
	}
	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var versionResp struct {
		Version string `json:"version"`
	}
	if json.NewDecoder(resp.Body).Decode(&versionResp) == nil {
		return versionResp.Version
	}
	return ""
}

// OK reports whether every checked dependency is available with its
// required model present.
func (r *CheckResult) OK() bool {
	return r.Embedding.Status == StatusAvailable && len(r.Embedding.MissingItems) == 0 &&
		r.LLM.Status == StatusAvailable && len(r.LLM.MissingItems) == 0
}
