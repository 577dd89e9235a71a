package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	gistAPIURL  = "https://api.github.com/gists"
	syncTimeout = 15 * time.Second
)

// GistSync pushes the store's CSV files to a private GitHub Gist. It is the
// best-effort remote durability layer behind Store.SyncChanges: a failed push
// is reported to the caller and retried on the next run, nothing is rolled
// back locally.
type GistSync struct {
	gistID     string
	token      string
	httpClient *http.Client
}

// NewGistSync creates a syncer for an existing gist.
func NewGistSync(gistID, token string) (*GistSync, error) {
	if gistID == "" {
		return nil, fmt.Errorf("gist ID is required")
	}
	if token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	return &GistSync{
		gistID: gistID,
		token:  token,
		httpClient: &http.Client{
			Timeout: syncTimeout,
		},
	}, nil
}

// Push updates the gist with the given files. The sync message becomes the
// gist description so the remote history shows when the last push happened.
func (g *GistSync) Push(files map[string]string, message string) error {
	gistFiles := make(map[string]any, len(files))
	for name, content := range files {
		gistFiles[name] = map[string]string{"content": content}
	}

	payload := map[string]any{
		"description": message,
		"files":       gistFiles,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s", gistAPIURL, g.gistID)
	req, err := http.NewRequest("PATCH", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("token %s", g.token))
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating gist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Don't include response body in error to prevent information leakage
		return fmt.Errorf("GitHub API error (status %d)", resp.StatusCode)
	}

	return nil
}
