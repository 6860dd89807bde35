package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// CompressionOptions tunes Brotli. Bodies shorter than Threshold go out plain.
type CompressionOptions struct {
	Level     int
	Threshold int
	Exempt    func(c *gin.Context) bool
}

var DefaultBrotliConfig = CompressionOptions{
	Level:     brotli.DefaultCompression,
	Threshold: 1024,
	Exempt:    SkipDownloads,
}

// SkipDownloads exempts result exports; XLSX is already deflated.
func SkipDownloads(c *gin.Context) bool {
	return strings.HasSuffix(c.Request.URL.Path, "/export")
}

// Brotli compresses JSON answers for clients that advertise br.
func Brotli() gin.HandlerFunc {
	return Compress(DefaultBrotliConfig)
}

// Compress builds the middleware from opts.
func Compress(opts CompressionOptions) gin.HandlerFunc {
	if opts.Level < brotli.BestSpeed || opts.Level > brotli.BestCompression {
		opts.Level = brotli.DefaultCompression
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultBrotliConfig.Threshold
	}

	return func(c *gin.Context) {
		if streaming(c.Request) || (opts.Exempt != nil && opts.Exempt(c)) || !wantsBrotli(c.GetHeader("Accept-Encoding")) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		cw := &compressWriter{ResponseWriter: c.Writer, level: opts.Level, threshold: opts.Threshold}
		c.Writer = cw
		c.Next()

		if err := cw.finish(); err != nil {
			_ = c.Error(err)
		}
	}
}

type encodeMode int

const (
	modePending encodeMode = iota
	modeBrotli
	modePlain
)

// compressWriter holds the body back until it can tell whether the response
// is worth compressing.
type compressWriter struct {
	gin.ResponseWriter
	level     int
	threshold int
	mode      encodeMode
	pending   []byte
	enc       *brotli.Writer
}

func (w *compressWriter) Write(p []byte) (int, error) {
	switch w.mode {
	case modeBrotli:
		return w.enc.Write(p)
	case modePlain:
		return w.ResponseWriter.Write(p)
	}

	w.pending = append(w.pending, p...)
	if len(w.pending) < w.threshold {
		return len(p), nil
	}
	if err := w.decide(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// decide commits to brotli unless a handler already encoded the body.
func (w *compressWriter) decide() error {
	h := w.ResponseWriter.Header()
	if h.Get("Content-Encoding") != "" {
		return w.release(modePlain)
	}
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	w.enc = brotli.NewWriterLevel(w.ResponseWriter, w.level)
	return w.release(modeBrotli)
}

func (w *compressWriter) release(mode encodeMode) error {
	w.mode = mode
	buf := w.pending
	w.pending = nil
	if len(buf) == 0 {
		return nil
	}
	var err error
	if mode == modeBrotli {
		_, err = w.enc.Write(buf)
	} else {
		_, err = w.ResponseWriter.Write(buf)
	}
	return err
}

// Flush gives up on compression if nothing was committed yet, so a handler
// that streams keeps working.
func (w *compressWriter) Flush() {
	switch w.mode {
	case modePending:
		_ = w.release(modePlain)
	case modeBrotli:
		_ = w.enc.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *compressWriter) finish() error {
	switch w.mode {
	case modePending:
		return w.release(modePlain)
	case modeBrotli:
		return w.enc.Close()
	}
	return nil
}

// streaming reports requests whose responses must not be buffered.
func streaming(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// wantsBrotli honours q-values, so "br;q=0" is a refusal.
func wantsBrotli(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "br") {
			continue
		}
		q, ok := strings.CutPrefix(strings.TrimSpace(params), "q=")
		if !ok {
			return true
		}
		v, err := strconv.ParseFloat(q, 64)
		return err == nil && v > 0
	}
	return false
}
