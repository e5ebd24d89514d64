package clients

import (
	"net/http"
	"time"

	"github.com/xka/flowmon/common/config"
)

// ClientConfig holds the worker manager connection settings
type ClientConfig struct {
	// BaseURL is {http|https}://host:port/apiVersion
	BaseURL string
	Timeout time.Duration

	// Transport overrides the default round tripper, mostly for tests
	Transport http.RoundTripper
}

// NewClientConfig derives client settings from the service configuration
func NewClientConfig(cfg *config.Config) ClientConfig {
	return ClientConfig{
		BaseURL: cfg.WorkerManagerURL(),
		Timeout: cfg.WorkerManager.RequestTimeout,
	}
}

func (c ClientConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: c.Transport,
	}
}
