package resolve

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type (
	directResponse struct {
		Status string      `json:"status"`
		Links  directLinks `json:"links"`
	}

	directLinks struct {
		NoWatermark string `json:"no_watermark"`
		Music       string `json:"music"`
	}

	// directResolver implements the "direct lookup" strategy: the raw source
	// URL is form-POSTed to the endpoint with a browser-like User-Agent (the
	// service rejects obviously non-browser clients). The response carries a
	// watermark-free video URL and a separate music URL, so no local
	// transcoding is needed downstream.
	directResolver struct {
		endpoint string
		client   *http.Client
	}
)

func newDirectResolver(config Config) *directResolver {
	return &directResolver{
		endpoint: config.DirectEndpoint,
		client:   &http.Client{Timeout: config.Timeout},
	}
}

func (resolver *directResolver) Resolve(ctx context.Context, sourceURL string) (*MediaDescriptor, error) {
	form := url.Values{}
	form.Set("url", sourceURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resolver.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &UnknownRequestError{err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	var response directResponse
	if err := httpJSONResponse(resolver.client, req, &response); err != nil {
		return nil, err
	}

	if response.Status != "ok" {
		return nil, &FailedRequestError{httpCode: http.StatusOK, message: "lookup service reported status '" + response.Status + "'"}
	}

	if response.Links.NoWatermark == "" || response.Links.Music == "" {
		return nil, &NoCandidateError{}
	}

	return &MediaDescriptor{
		VideoURL: response.Links.NoWatermark,
		AudioURL: response.Links.Music,
	}, nil
}
