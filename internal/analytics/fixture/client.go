// Package fixture serves report rows from a recorded list instead of the
// live provider. It backs --dry-run and tests.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// Client pages through a fixed row set the same way the provider does.
type Client struct {
	mu    sync.Mutex
	rows  []counter.ReportRow
	err   error
	calls int
}

// New returns a Client over rows.
func New(rows []counter.ReportRow) *Client {
	return &Client{rows: rows}
}

// Load reads rows from a JSON file containing [{"path": ..., "pageviews": ...}].
func Load(path string) (*Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var rows []counter.ReportRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return New(rows), nil
}

// FailWith makes subsequent calls return err. Pass nil to clear.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls reports how many queries reached the client.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// FetchReport returns rows [StartIndex-1, StartIndex-1+MaxResults).
func (c *Client) FetchReport(_ context.Context, params counter.FetchParameters) (counter.ChunkPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return counter.ChunkPayload{}, c.err
	}
	start := params.StartIndex - 1
	if start < 0 {
		start = 0
	}
	if start > len(c.rows) {
		start = len(c.rows)
	}
	end := start + params.MaxResults
	if end > len(c.rows) {
		end = len(c.rows)
	}
	rows := make([]counter.ReportRow, end-start)
	copy(rows, c.rows[start:end])
	return counter.ChunkPayload{Rows: rows, TotalResults: len(c.rows)}, nil
}
