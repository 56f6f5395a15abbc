package gemini

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client lazily builds the underlying genai client on first use, so
// the app can boot and serve ingestion-free endpoints before an API
// key is configured.
type Client struct {
	apiKey string
	opts   []option.ClientOption

	mu     sync.RWMutex
	client *genai.Client
}

func NewClient(apiKey string, opts ...option.ClientOption) *Client {
	return &Client{apiKey: apiKey, opts: opts}
}

func (c *Client) get(ctx context.Context) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if c.client != nil {
		return c.client, nil
	}

	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	opts := append(c.opts, option.WithAPIKey(c.apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
