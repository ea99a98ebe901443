// Package gzippedhttp provides middleware that accepts gzip-encoded request
// bodies and compresses JSON responses for clients that ask for it.
package gzippedhttp

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

var compressibleTypes = []string{
	"application/json",
	"text/plain",
	"text/html",
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

type decompressedBody struct {
	body io.ReadCloser
	zr   *gzip.Reader
}

func newDecompressedBody(body io.ReadCloser) (*decompressedBody, error) {
	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, err
	}

	return &decompressedBody{
		body: body,
		zr:   zr,
	}, nil
}

func (d *decompressedBody) Read(p []byte) (int, error) {
	return d.zr.Read(p)
}

func (d *decompressedBody) Close() error {
	if err := d.body.Close(); err != nil {
		return err
	}
	return d.zr.Close()
}

// compressingWriter decides on the first WriteHeader whether the body is
// worth compressing. Error statuses and non-text bodies pass through.
type compressingWriter struct {
	http.ResponseWriter
	zw          *gzip.Writer
	wroteHeader bool
}

func (c *compressingWriter) WriteHeader(statusCode int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true

	header := c.Header()
	header.Add("Vary", "Accept-Encoding")

	if statusCode < http.StatusMultipleChoices &&
		statusCode != http.StatusNoContent &&
		isCompressible(header.Get("Content-Type")) {
		header.Set("Content-Encoding", "gzip")
		header.Del("Content-Length")
		c.zw = gzipWriterPool.Get().(*gzip.Writer)
		c.zw.Reset(c.ResponseWriter)
	}

	c.ResponseWriter.WriteHeader(statusCode)
}

func (c *compressingWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	if c.zw == nil {
		return c.ResponseWriter.Write(p)
	}
	return c.zw.Write(p)
}

func (c *compressingWriter) close() error {
	if c.zw == nil {
		return nil
	}

	err := c.zw.Close()
	gzipWriterPool.Put(c.zw)
	c.zw = nil

	return err
}

func isCompressible(contentType string) bool {
	for _, t := range compressibleTypes {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

// GzipResponse compresses successful JSON and text responses when the
// request's Accept-Encoding contains gzip.
func GzipResponse(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if !strings.Contains(request.Header.Get("Accept-Encoding"), "gzip") {
			h.ServeHTTP(response, request)
			return
		}

		writer := &compressingWriter{ResponseWriter: response}
		defer writer.close()

		h.ServeHTTP(writer, request)
	}

	return http.HandlerFunc(middleware)
}

// UngzipRequest replaces the body of a request sent with Content-Encoding gzip
// with its decompressed stream. A body that is not valid gzip is rejected with 400.
func UngzipRequest(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if !strings.Contains(request.Header.Get("Content-Encoding"), "gzip") {
			h.ServeHTTP(response, request)
			return
		}

		body, err := newDecompressedBody(request.Body)
		if err != nil {
			response.WriteHeader(http.StatusBadRequest)
			return
		}
		defer body.Close()

		request.Body = body
		request.Header.Del("Content-Encoding")

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
