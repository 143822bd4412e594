package mw

import (
	"bytes"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"fleet-audit-backend/internal/metrics"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

// recordingWriter tees the response body so it can be stored after the handler runs.
type recordingWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// cacheKey canonicalizes the request so equivalent override sets share an entry:
// "defective=b,a" and "defective=a&defective=b" map to the same key.
func cacheKey(r *http.Request) string {
	q := r.URL.Query()
	if raw, ok := q["defective"]; ok {
		var ids []string
		for _, v := range raw {
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}
		sort.Strings(ids)
		q["defective"] = []string{strings.Join(ids, ",")}
	}
	for _, vs := range q {
		sort.Strings(vs)
	}
	// url.Values.Encode sorts by key.
	return r.URL.Path + "?" + q.Encode()
}

// Cache serves repeated GET requests from memory for ttl. Only 2xx responses are stored.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		if v, found := store.Get(key); found {
			metrics.IncCacheLookup(true)
			hit := v.(cachedResponse)
			header := c.Writer.Header()
			for k, vs := range hit.headers {
				header[k] = vs
			}
			header.Set("X-Cache", "HIT")
			c.Writer.WriteHeader(hit.status)
			_, _ = c.Writer.Write(hit.body)
			c.Abort()
			return
		}
		metrics.IncCacheLookup(false)

		rec := recordingWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		if status := rec.Status(); status >= http.StatusOK && status < http.StatusMultipleChoices {
			store.Set(key, cachedResponse{
				status:  status,
				headers: rec.Header().Clone(),
				body:    rec.buf.Bytes(),
			}, ttl)
		}
	}
}
