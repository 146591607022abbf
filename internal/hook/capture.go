package hook

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"

	"hookrelay/internal/security"
	"hookrelay/internal/types"
	"hookrelay/internal/utils"
)

// Capturer turns an inbound webhook call into a HookRecord.
type Capturer struct {
	clock        clock.Clock
	maxBodyBytes int64
}

func NewCapturer(clk clock.Clock, maxBodyBytes int64) *Capturer {
	if clk == nil {
		clk = clock.New()
	}
	return &Capturer{clock: clk, maxBodyBytes: maxBodyBytes}
}

// Capture reads the request body (up to the configured limit) and returns
// the record together with the raw bytes read. A body that fails to read is
// recorded as far as it got.
func (c *Capturer) Capture(r *http.Request) (types.HookRecord, []byte) {
	raw, truncated := c.readBody(r)
	contentType := r.Header.Get("Content-Type")

	rec := types.HookRecord{
		Method:        r.Method,
		Path:          r.URL.RequestURI(),
		Headers:       HeaderPairs(r),
		Body:          encodeBody(raw, contentType, truncated),
		Query:         map[string][]string(r.URL.Query()),
		ContentType:   contentType,
		RemoteAddr:    security.GetClientIP(r),
		BodyTruncated: truncated,
		ReceivedAt:    c.clock.Now().UTC(),
	}
	return rec, raw
}

func (c *Capturer) readBody(r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		return nil, false
	}
	lb := &utils.LimitedBuffer{Buf: &bytes.Buffer{}, Limit: int(c.maxBodyBytes)}
	// one byte past the limit is enough to know it was exceeded
	_, _ = io.Copy(lb, io.LimitReader(r.Body, c.maxBodyBytes+1))
	return lb.Buf.Bytes(), lb.Truncated
}

// HeaderPairs flattens the request headers into name/value pairs. Host comes
// first, then each header name in sorted order with its values in the order
// they were received. Repeated headers stay repeated.
func HeaderPairs(r *http.Request) []types.HeaderPair {
	names := lo.Keys(map[string][]string(r.Header))
	sort.Strings(names)

	pairs := lo.FlatMap(names, func(name string, _ int) []types.HeaderPair {
		return lo.Map(r.Header[name], func(value string, _ int) types.HeaderPair {
			return types.HeaderPair{Name: name, Value: value}
		})
	})

	if r.Host != "" {
		pairs = append([]types.HeaderPair{{Name: "Host", Value: r.Host}}, pairs...)
	}
	return pairs
}

// encodeBody keeps JSON bodies as JSON and everything else as a string.
// An empty body is null.
func encodeBody(raw []byte, contentType string, truncated bool) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if !truncated && isJSONContentType(contentType) && json.Valid(raw) {
		return json.RawMessage(bytes.Clone(raw))
	}
	encoded, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return encoded
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
