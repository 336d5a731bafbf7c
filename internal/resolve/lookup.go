package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"ripley/pkg/logger"
)

var log = logger.Get("Resolver")

const maxRedirectHops = 5

type (
	lookupResponse struct {
		Video []lookupCandidate `json:"video"`
	}

	lookupCandidate struct {
		URL string `json:"url"`
	}

	// lookupResolver implements the "redirect+lookup" strategy: the source
	// URL is followed through its redirect chain (share links are usually
	// shortened) to obtain the canonical URL, the query string is stripped,
	// and the result is submitted to the lookup endpoint. The first video
	// candidate wins. This strategy never yields a standalone audio asset.
	lookupResolver struct {
		endpoint string
		client   *http.Client
	}
)

func newLookupResolver(config Config) *lookupResolver {
	return &lookupResolver{
		endpoint: config.LookupEndpoint,
		client: &http.Client{
			Timeout: config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirectHops {
					return fmt.Errorf("stopped after %d redirect hops", maxRedirectHops)
				}
				return nil
			},
		},
	}
}

func (resolver *lookupResolver) Resolve(ctx context.Context, sourceURL string) (*MediaDescriptor, error) {
	canonicalURL, err := resolver.canonicalise(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	log.Emit(logger.DEBUG, "Source URL %s canonicalised to %s\n", sourceURL, canonicalURL)

	path := fmt.Sprintf("%s?url=%s", resolver.endpoint, url.QueryEscape(canonicalURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, &UnknownRequestError{err.Error()}
	}

	var response lookupResponse
	if err := httpJSONResponse(resolver.client, req, &response); err != nil {
		return nil, err
	}

	if len(response.Video) == 0 || response.Video[0].URL == "" {
		return nil, &NoCandidateError{}
	}

	return &MediaDescriptor{VideoURL: response.Video[0].URL}, nil
}

// canonicalise follows the redirect chain of the source URL (bounded to
// maxRedirectHops) and returns the final URL with its query string removed.
func (resolver *lookupResolver) canonicalise(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", &UnknownRequestError{fmt.Sprintf("source URL is malformed: %s", err.Error())}
	}

	resp, err := resolver.client.Do(req)
	if err != nil {
		return "", &UnknownRequestError{fmt.Sprintf("failed to follow source URL redirects: %s", err.Error())}
	}
	defer resp.Body.Close()

	resolved := *resp.Request.URL
	resolved.RawQuery = ""
	resolved.Fragment = ""
	return resolved.String(), nil
}
