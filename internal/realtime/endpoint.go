package realtime

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// EndpointPath is where the interview server accepts sessions
const EndpointPath = "/ws/realtime-interview/"

// EndpointURL derives the realtime endpoint from the URL of the hosting page:
// same hostname, the given port, wss when the page is served over https.
func EndpointURL(pageURL string, port int) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("page URL %q has no host", pageURL)
	}
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid port: %d", port)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(u.Hostname(), strconv.Itoa(port)),
		Path:   EndpointPath,
	}
	return endpoint.String(), nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint %q must use ws or wss", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return nil
}
