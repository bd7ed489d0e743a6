package forward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/getburrow/burrow/pkg/relay"
)

// Translator builds outbound HTTP requests from inbound relayed requests:
// it strips the tunnel's routing segment from the path, maps the verb onto
// the supported set, and attaches the fully buffered body.
type Translator struct {
	base string
}

// NewTranslator validates and normalizes the backend base URL. A trailing
// slash is dropped so joining with the forwarded path never doubles one.
func NewTranslator(backendURL string) (*Translator, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("backend URL %q: %w", backendURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend URL %q: scheme and host are required", backendURL)
	}
	return &Translator{base: strings.TrimRight(u.String(), "/")}, nil
}

// methodMap is the fixed verb whitelist. Lookup is by uppercased name, so
// mapping is case-insensitive.
var methodMap = map[string]string{
	http.MethodGet:     http.MethodGet,
	http.MethodPost:    http.MethodPost,
	http.MethodPut:     http.MethodPut,
	http.MethodDelete:  http.MethodDelete,
	http.MethodOptions: http.MethodOptions,
}

// MapMethod maps an inbound verb, case-insensitively, onto the supported
// set {GET, POST, PUT, DELETE, OPTIONS}. Anything else fails with
// ErrUnsupportedMethod before any network call is made.
func MapMethod(method string) (string, error) {
	if m, ok := methodMap[strings.ToUpper(method)]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
}

// StripRoutingSegment removes exactly the first path segment, the tunnel's
// own identity segment, keeping the query string untouched:
// "/machineA/foo/bar?x=1" becomes "/foo/bar?x=1" and "/machineA" becomes
// "/". The result always starts with a slash.
func StripRoutingSegment(path string) string {
	p, query, hasQuery := strings.Cut(path, "?")
	p = strings.TrimPrefix(p, "/")

	out := "/"
	if _, rest, found := strings.Cut(p, "/"); found {
		out += rest
	}
	if hasQuery {
		out += "?" + query
	}
	return out
}

// Translate builds the outbound request for req against the backend base
// URL and returns it together with the body text retained for the request
// record. The body is attached fully buffered; middlewares may read and
// replace it wholesale. No partially constructed request is ever returned.
func (t *Translator) Translate(ctx context.Context, req *relay.Request) (*http.Request, string, error) {
	method, err := MapMethod(req.Method)
	if err != nil {
		return nil, "", err
	}

	target := t.base + StripRoutingSegment(req.Path)
	u, err := url.Parse(target)
	if err != nil {
		return nil, "", fmt.Errorf("%w: parse %q: %w", ErrTranslation, target, err)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	out, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build request: %w", ErrTranslation, err)
	}

	// Content-class headers get dedicated placement on the request object;
	// everything else appends to the header collection in pair order.
	for _, p := range req.Headers {
		switch {
		case strings.EqualFold(p.Name, "Host"):
			out.Host = p.Value
		case strings.EqualFold(p.Name, "Content-Length"):
			// The buffered body already set ContentLength exactly; a stale
			// declared value would only contradict it.
		default:
			out.Header.Add(p.Name, p.Value)
		}
	}

	return out, string(req.Body), nil
}

// contentHeaderNames is the set of entity headers that describe the body
// rather than the message. They are copied onto the relay response as a
// distinct block after the general headers.
var contentHeaderNames = map[string]bool{
	"Content-Type":        true,
	"Content-Length":      true,
	"Content-Encoding":    true,
	"Content-Language":    true,
	"Content-Location":    true,
	"Content-Range":       true,
	"Content-Disposition": true,
	"Allow":               true,
	"Expires":             true,
	"Last-Modified":       true,
}

// isContentHeader reports whether name is a content-class header.
func isContentHeader(name string) bool {
	return contentHeaderNames[textproto.CanonicalMIMEHeaderKey(name)]
}
