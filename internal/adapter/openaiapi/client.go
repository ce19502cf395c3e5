// Package openaiapi is a small resty client for OpenAI and Azure OpenAI style
// endpoints, shared by the embedding and completion adapters.
package openaiapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Providers understood by NewClient.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultAzureAPIVersion is used when an Azure config leaves APIVersion empty.
const DefaultAzureAPIVersion = "2024-02-01"

// Config describes how to reach an endpoint. Azure requires BaseURL
// (https://<resource>.openai.azure.com) and uses the model name as the
// deployment.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
	RetryCount int
}

// Client posts JSON requests to an OpenAI compatible API.
type Client struct {
	provider   string
	apiVersion string
	http       *resty.Client
}

// APIError is the error envelope returned by OpenAI and Azure.
type APIError struct {
	Status int    `json:"-"`
	Detail struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	if e.Detail.Message == "" {
		return fmt.Sprintf("api error (status %d)", e.Status)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Detail.Message)
}

// NewClient builds a client for cfg.
func NewClient(cfg Config) (*Client, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", provider)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	apiVersion := cfg.APIVersion

	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.AddRetryCondition(retryCondition)

	switch provider {
	case ProviderOpenAI:
		if baseURL == "" {
			baseURL = DefaultBaseURL
		}
		client.SetAuthToken(cfg.APIKey)
	case ProviderAzure:
		if baseURL == "" {
			return nil, errors.New("azure: base_url is required")
		}
		if apiVersion == "" {
			apiVersion = DefaultAzureAPIVersion
		}
		client.SetHeader("api-key", cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	client.SetBaseURL(baseURL)

	return &Client{
		provider:   provider,
		apiVersion: apiVersion,
		http:       client,
	}, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return c.provider
}

// Post sends body to the operation path ("/embeddings", "/chat/completions")
// for model and decodes the response into result.
func (c *Client) Post(ctx context.Context, model, path string, body, result any) error {
	req := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&APIError{})

	url := path
	if c.provider == ProviderAzure {
		url = "/openai/deployments/" + model + path
		req.SetQueryParam("api-version", c.apiVersion)
	}

	resp, err := req.Post(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*APIError); ok && apiErr != nil {
			apiErr.Status = resp.StatusCode()
			return apiErr
		}
		return &APIError{Status: resp.StatusCode()}
	}
	return nil
}

// retryCondition retries network errors, throttling and server errors.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
