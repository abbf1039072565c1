package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/randomizedcoder/go-speedtest/internal/stats"
)

const (
	downloadPath = "/__down"
	uploadPath   = "/__up"

	headerTerminator = "\r\n\r\n"
)

// TestResults is the timing breakdown of one completed transfer.
//
// For downloads, EndDuration runs from just after the request was
// written to the final body byte, so it includes TTFBDuration. For
// uploads, EndDuration runs from the first request byte written to the
// first response byte read, and TTFBDuration and ServerTime are zero:
// the server cannot respond until it has received the whole body, so
// its processing time is not separable from the transfer.
type TestResults struct {
	TCPDuration  time.Duration
	TTFBDuration time.Duration
	ServerTime   time.Duration
	EndDuration  time.Duration
	Bytes        int64
}

// Measurement reduces the timing breakdown to the numbers the
// aggregation layer works with.
func (r TestResults) Measurement() stats.BandwidthMeasurement {
	return stats.BandwidthMeasurement{
		Bytes:        r.Bytes,
		BandwidthBps: stats.BandwidthBps(r.Bytes, r.EndDuration.Seconds(), r.ServerTime.Seconds()),
		DurationMs:   float64(r.EndDuration) / float64(time.Millisecond),
		ServerTimeMs: float64(r.ServerTime) / float64(time.Millisecond),
		TTFBMs:       float64(r.TTFBDuration) / float64(time.Millisecond),
	}
}

// Download fetches the given number of bytes from the measurement
// server over a fresh connection and returns the timing breakdown.
func (h *Harness) Download(ctx context.Context, bytes int64) (TestResults, error) {
	return h.download(ctx, bytes, nil)
}

// DownloadWithLoadedLatency runs Download while a background probe
// measures latency against the same server at the sampler's cadence.
func (h *Harness) DownloadWithLoadedLatency(ctx context.Context, bytes int64, samples chan<- float64, cadence SamplerCadence) (TestResults, error) {
	return h.download(ctx, bytes, &samplerSpec{samples: samples, cadence: cadence})
}

func (h *Harness) download(ctx context.Context, size int64, spec *samplerSpec) (TestResults, error) {
	h.logger.Debug("download_starting", "bytes", size)

	stream, ip, tcpDuration, err := h.connect(ctx)
	if err != nil {
		return TestResults{}, err
	}
	defer stream.Close()

	request := h.buildGetRequest(size)
	requestStart := time.Now()

	if _, err := io.WriteString(stream, request); err != nil {
		return TestResults{}, fmt.Errorf("writing request: %w", err)
	}
	if err := stream.Flush(); err != nil {
		return TestResults{}, fmt.Errorf("flushing request: %w", err)
	}

	var sampler *sampler
	if spec != nil {
		sampler = h.startSampler(ip, requestStart, spec.cadence, spec.samples)
		defer sampler.stopAndWait()
	}

	ttfb, serverTime, end, err := readResponse(stream)
	if err != nil {
		return TestResults{}, err
	}

	return TestResults{
		TCPDuration:  tcpDuration,
		TTFBDuration: ttfb,
		ServerTime:   serverTime,
		EndDuration:  end,
		Bytes:        size,
	}, nil
}

// Upload posts the given number of bytes to the measurement server over
// a fresh connection and returns the timing breakdown.
func (h *Harness) Upload(ctx context.Context, bytes int64) (TestResults, error) {
	return h.upload(ctx, bytes, nil)
}

// UploadWithLoadedLatency runs Upload while a background probe measures
// latency against the same server at the sampler's cadence.
func (h *Harness) UploadWithLoadedLatency(ctx context.Context, bytes int64, samples chan<- float64, cadence SamplerCadence) (TestResults, error) {
	return h.upload(ctx, bytes, &samplerSpec{samples: samples, cadence: cadence})
}

func (h *Harness) upload(ctx context.Context, size int64, spec *samplerSpec) (TestResults, error) {
	h.logger.Debug("upload_starting", "bytes", size)

	stream, ip, tcpDuration, err := h.connect(ctx)
	if err != nil {
		return TestResults{}, err
	}
	defer stream.Close()

	payload := uploadPayload(size)
	request := h.buildPostRequest(len(payload))
	uploadStart := time.Now()

	var sampler *sampler
	if spec != nil {
		sampler = h.startSampler(ip, uploadStart, spec.cadence, spec.samples)
		defer sampler.stopAndWait()
	}

	if _, err := io.WriteString(stream, request); err != nil {
		return TestResults{}, fmt.Errorf("writing request: %w", err)
	}
	if _, err := stream.Write(payload); err != nil {
		return TestResults{}, fmt.Errorf("writing body: %w", err)
	}
	if err := stream.Flush(); err != nil {
		return TestResults{}, fmt.Errorf("flushing body: %w", err)
	}

	// The first response byte marks the server having received the
	// whole body, so write-to-first-byte is the transfer time.
	one := make([]byte, 1)
	if _, err := io.ReadFull(stream, one); err != nil {
		return TestResults{}, fmt.Errorf("reading response: %w", err)
	}
	uploadDuration := time.Since(uploadStart)

	if _, _, err := readRemainingResponse(stream, one[0]); err != nil {
		return TestResults{}, err
	}

	return TestResults{
		TCPDuration:  tcpDuration,
		TTFBDuration: 0,
		ServerTime:   0,
		EndDuration:  uploadDuration,
		Bytes:        size,
	}, nil
}

// uploadPayload builds the POST body: ASCII zeros, cheap to generate
// and representative of compressible traffic.
func uploadPayload(size int64) []byte {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = '0'
	}
	return payload
}

func (h *Harness) buildGetRequest(bytes int64) string {
	return fmt.Sprintf("GET %s?bytes=%d HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"User-Agent: %s\r\n"+
		"Accept: */*\r\n"+
		"Accept-Encoding: gzip, deflate, br, zstd\r\n"+
		"Connection: close\r\n"+
		"\r\n",
		downloadPath, bytes, h.cfg.Host, h.cfg.UserAgent)
}

func (h *Harness) buildPostRequest(contentLength int) string {
	return fmt.Sprintf("POST %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"User-Agent: %s\r\n"+
		"Accept: */*\r\n"+
		"Content-Type: text/plain;charset=UTF-8\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n",
		uploadPath, h.cfg.Host, h.cfg.UserAgent, contentLength)
}

// readResponse times a download response: first byte, then headers byte
// by byte until the terminator, then the body to EOF. Both TTFB and the
// end duration are measured from the first read.
func readResponse(stream io.Reader) (ttfb, serverTime, end time.Duration, err error) {
	one := make([]byte, 1)

	start := time.Now()
	if _, err := io.ReadFull(stream, one); err != nil {
		return 0, 0, 0, fmt.Errorf("reading response: %w", err)
	}
	ttfb = time.Since(start)

	serverTime, _, err = readRemainingResponse(stream, one[0])
	if err != nil {
		return 0, 0, 0, err
	}
	end = time.Since(start)

	return ttfb, serverTime, end, nil
}

// readRemainingResponse consumes the rest of a response whose first
// byte has already been read: the header block one byte at a time, then
// the body until the server closes the connection. Returns the parsed
// server-timing value and the number of body bytes.
func readRemainingResponse(stream io.Reader, first byte) (serverTime time.Duration, bodyBytes int64, err error) {
	headers := []byte{first}
	one := make([]byte, 1)

	for !bytes.HasSuffix(headers, []byte(headerTerminator)) {
		n, err := stream.Read(one)
		if n > 0 {
			headers = append(headers, one[0])
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("reading headers: %w", err)
		}
	}

	if value, found := headerValue(string(headers), "server-timing"); found {
		if d, ok := ParseServerTiming(value); ok {
			serverTime = d
		}
	}

	bodyBytes, err = io.Copy(io.Discard, stream)
	if err != nil {
		return 0, 0, fmt.Errorf("reading body: %w", err)
	}
	return serverTime, bodyBytes, nil
}

// headerValue finds the first occurrence of the named header in a raw
// header block. Names match case-insensitively.
func headerValue(raw, name string) (string, bool) {
	for _, line := range strings.Split(raw, "\r\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
