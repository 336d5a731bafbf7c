// Package resolve translates a user-submitted social media URL into direct
// media asset URLs by querying an external lookup API. Two interchangeable
// strategies exist: one follows redirects to a canonical URL before querying
// a lookup endpoint, the other submits the raw URL to a form-based endpoint
// which also returns a separate audio asset.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type (
	Config struct {
		Strategy       string        `yaml:"strategy" env:"RESOLVER_STRATEGY" env-default:"lookup"`
		LookupEndpoint string        `yaml:"lookup_endpoint" env:"RESOLVER_LOOKUP_ENDPOINT" env-default:"https://api.tikmate.app/api/lookup"`
		DirectEndpoint string        `yaml:"direct_endpoint" env:"RESOLVER_DIRECT_ENDPOINT" env-default:"https://www.tikwm.com/api/"`
		Timeout        time.Duration `yaml:"timeout" env:"RESOLVER_TIMEOUT" env-default:"20s"`
	}

	// MediaDescriptor holds the direct asset URL(s) a source URL resolved to.
	// An empty AudioURL means no standalone audio asset exists and an audio
	// rendition must be derived from the video by the transcoder.
	MediaDescriptor struct {
		VideoURL string
		AudioURL string
	}

	// Resolver translates a source URL into a MediaDescriptor. A resolver
	// performs exactly one attempt; any failure is terminal for the request.
	Resolver interface {
		Resolve(ctx context.Context, sourceURL string) (*MediaDescriptor, error)
	}
)

// New constructs the resolver for the strategy named in the config.
func New(config Config) (Resolver, error) {
	switch config.Strategy {
	case "lookup":
		return newLookupResolver(config), nil
	case "direct":
		return newDirectResolver(config), nil
	default:
		return nil, fmt.Errorf("unknown resolver strategy '%s' (expected 'lookup' or 'direct')", config.Strategy)
	}
}

// httpJSONResponse executes the request provided and unmarshals the JSON
// response body into targetInterface. Network failures, non-OK statuses and
// malformed bodies are all reported with the resolver error taxonomy.
func httpJSONResponse(client *http.Client, req *http.Request, targetInterface interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to perform %s(%s) to lookup service: %s", req.Method, req.URL, err.Error())}
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &FailedRequestError{httpCode: resp.StatusCode, message: "lookup service returned non-OK response"}
	}

	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to read response body: %s", err.Error())}
	}

	if err := json.Unmarshal(respBody, targetInterface); err != nil {
		return &UnknownRequestError{fmt.Sprintf("response JSON could not be unmarshalled: %s", err.Error())}
	}

	return nil
}

type (
	// FailedRequestError indicates the lookup service answered, but with a
	// response that cannot be used (bad HTTP status or an error flag).
	FailedRequestError struct {
		httpCode int
		message  string
	}

	// NoCandidateError indicates a well-formed response containing no usable
	// media candidates for the source URL.
	NoCandidateError struct{}

	// UnknownRequestError covers transport level failures and malformed
	// response bodies.
	UnknownRequestError struct{ reason string }
)

func (err *FailedRequestError) Error() string {
	return fmt.Sprintf("lookup request failure (HTTP %d): %s", err.httpCode, err.message)
}
func (err *NoCandidateError) Error() string { return "no media candidates returned by lookup service" }
func (err *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown error occurred while communicating with lookup service: %s", err.reason)
}
