package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sydlexius/refrain/internal/research"
)

// apiClient talks to a running `refrain serve`.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

type enqueueRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Year   int    `json:"year,omitempty"`
}

type queueListing struct {
	Size int            `json:"size"`
	Jobs []research.Job `json:"jobs"`
}

func (c *apiClient) enqueue(ctx context.Context, req enqueueRequest) (research.Job, error) {
	var job research.Job
	body, err := json.Marshal(req)
	if err != nil {
		return job, err
	}
	err = c.do(ctx, http.MethodPost, "/api/v1/research", bytes.NewReader(body), http.StatusAccepted, &job)
	return job, err
}

func (c *apiClient) queue(ctx context.Context) (queueListing, error) {
	var out queueListing
	err := c.do(ctx, http.MethodGet, "/api/v1/queue", nil, http.StatusOK, &out)
	return out, err
}

func (c *apiClient) status(ctx context.Context) (research.Status, error) {
	var out research.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/queue/status", nil, http.StatusOK, &out)
	return out, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting refrain server at %s: %w", c.base, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Join(errors.New("decoding server response"), err)
	}
	return nil
}
