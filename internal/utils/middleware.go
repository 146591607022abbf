package utils

import (
	"compress/gzip"
	"io"
	"net/http"
	"sync"
)

var gzipPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

// GetGzipWriter returns a pooled gzip writer targeting w.
func GetGzipWriter(w io.Writer) *gzip.Writer {
	gz := gzipPool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

// PutGzipWriter closes gz and returns it to the pool.
func PutGzipWriter(gz *gzip.Writer) {
	_ = gz.Close()
	gzipPool.Put(gz)
}

type GzipResponseWriter struct {
	http.ResponseWriter
	*gzip.Writer
	wroteHeader bool
}

func (w *GzipResponseWriter) Header() http.Header {
	return w.ResponseWriter.Header()
}

// WriteHeader drops any Content-Length set by the wrapped handler, since it
// describes the uncompressed body.
func (w *GzipResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(code)
}

func (w *GzipResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.Writer.Write(b)
}

func (w *GzipResponseWriter) Flush() {
	w.Writer.Flush()
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
