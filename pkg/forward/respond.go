package forward

import (
	"fmt"
	"io"
	"net/http"

	"github.com/getburrow/burrow/pkg/relay"
)

// TranslateResponse maps a backend response into the relay response form.
// The status code is copied exactly. A response without a body or without
// a declared Content-Type goes out with an empty body and the content type
// omitted; otherwise body and content type travel verbatim. Headers are
// copied without transformation, validation, or filtering; anything of
// that kind belongs to the middleware chain, which has already run.
func TranslateResponse(resp *http.Response) (*relay.Response, error) {
	out := &relay.Response{Status: resp.StatusCode}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read backend response body: %w", err)
		}
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" && len(body) > 0 {
		out.Body = body
		out.ContentType = contentType
	}

	out.Headers = responseHeaderPairs(resp.Header)
	return out, nil
}

// responseHeaderPairs copies every general header and then, as a separate
// block, every content-class header, preserving multi-valued headers as
// repeated entries in their original value order.
func responseHeaderPairs(h http.Header) []relay.HeaderPair {
	if len(h) == 0 {
		return nil
	}

	general := make(http.Header, len(h))
	content := make(http.Header)
	for name, values := range h {
		if isContentHeader(name) {
			content[name] = values
		} else {
			general[name] = values
		}
	}

	return append(relay.Pairs(general), relay.Pairs(content)...)
}
