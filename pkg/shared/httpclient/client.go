// Package httpclient builds *http.Client instances tuned per outbound
// dependency (provider RPC, embedding service, metrics sink) instead of
// sharing one client's timeouts across unrelated call shapes.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig controls the transport and timeout behavior of a client
// built by NewClient.
type ClientConfig struct {
	Timeout                 time.Duration
	MaxRetries              int
	DisableSSLVerification  bool
	MaxIdleConns            int
	IdleConnTimeout         time.Duration
	TLSHandshakeTimeout     time.Duration
	ResponseHeaderTimeout   time.Duration
}

// DefaultClientConfig returns sane defaults for a general-purpose outbound
// HTTP call.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:                30 * time.Second,
		MaxRetries:             3,
		DisableSSLVerification: false,
		MaxIdleConns:           10,
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
	}
}

// NewClient builds an *http.Client from config.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout builds a client with DefaultClientConfig except for
// the given timeout.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	return NewClient(config)
}

// NewDefaultClient builds a client from DefaultClientConfig.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}

// EmbeddingServiceClientConfig tunes a client for calls to an external
// embedding service: short timeout, few retries, fast failover to the
// local hashing embedder.
func EmbeddingServiceClientConfig() ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = 10 * time.Second
	config.MaxRetries = 2
	return config
}

// MetricsSinkClientConfig tunes a client for pushing statistics to an
// external metrics sink, where half the budget is spent waiting on
// response headers.
func MetricsSinkClientConfig(timeout time.Duration) ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.ResponseHeaderTimeout = timeout / 2
	return config
}

// ProviderClientConfig tunes a client for calls against an LLM provider API,
// where a third of the budget is reserved for the response header and the
// rest for streaming the completion body.
func ProviderClientConfig(timeout time.Duration) ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.ResponseHeaderTimeout = timeout / 3
	return config
}
