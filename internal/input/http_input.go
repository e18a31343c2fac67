package input

import (
	"bufio"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/pkg/item"
)

const (
	eventsEndpoint  = "events"
	publishEndpoint = "publish"
	maxPublishBody  = 1 << 20
)

var (
	ndjsonLinesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqw_http_ndjson_lines_total",
			Help: "Total number of NDJSON lines received per endpoint",
		},
		[]string{"endpoint"},
	)

	ndjsonParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqw_http_ndjson_parse_errors_total",
			Help: "Total number of NDJSON parse errors per endpoint",
		},
		[]string{"endpoint"},
	)
)

// HTTPInput accepts events as NDJSON on /events and single raw payloads
// on /publish?topic=.
type HTTPInput struct {
	baseInput
	mux *http.ServeMux
	ctx context.Context
}

func NewHTTPInput(subject *Subject, mux *http.ServeMux) *HTTPInput {
	return &HTTPInput{
		baseInput: baseInput{subject: subject},
		mux:       mux,
		ctx:       context.Background(),
	}
}

func (hi *HTTPInput) Name() string {
	return "http"
}

func (hi *HTTPInput) Start(ctx context.Context) error {
	hi.ctx = ctx
	hi.mux.HandleFunc("/events", hi.handleEvents)
	hi.mux.HandleFunc("/publish", hi.handlePublish)
	for _, e := range []string{eventsEndpoint, publishEndpoint} {
		ndjsonLinesReceived.WithLabelValues(e).Add(0)
		ndjsonParseErrors.WithLabelValues(e).Add(0)
	}
	return nil
}

func (hi *HTTPInput) Stop() error {
	return nil
}

func (hi *HTTPInput) handleEvents(w http.ResponseWriter, r *http.Request) {
	hi.handleNDJSON(w, r, func(line string) {
		topic, payload, retained, err := parseEventLine([]byte(line))
		if err != nil {
			logger.Error("Failed to parse event line", slog.Any("error", err))
			ndjsonParseErrors.WithLabelValues(eventsEndpoint).Inc()
			return
		}
		ndjsonLinesReceived.WithLabelValues(eventsEndpoint).Inc()
		hi.subject.Publish(hi.ctx, hi.Name(), item.Event{Topic: topic, Payload: payload, Retained: retained})
	})
}

func (hi *HTTPInput) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		ndjsonParseErrors.WithLabelValues(publishEndpoint).Inc()
		http.Error(w, "missing topic", http.StatusBadRequest)
		return
	}
	body, err := decodeBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	defer body.Close()

	payload, err := io.ReadAll(io.LimitReader(body, maxPublishBody))
	if err != nil {
		logger.Error("Error reading request body", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ndjsonLinesReceived.WithLabelValues(publishEndpoint).Inc()
	retained := r.URL.Query().Get("retained") == "true"
	if !hi.subject.Publish(r.Context(), hi.Name(), item.Event{Topic: topic, Payload: payload, Retained: retained}) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

type zstdCloser struct{ *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// decodeBody unwraps the request body according to Content-Encoding.
func decodeBody(r *http.Request) (io.ReadCloser, error) {
	ce := r.Header.Get("Content-Encoding")
	switch strings.ToLower(ce) {
	case "", "identity":
		return nopCloser{r.Body}, nil
	case "gzip":
		return gzip.NewReader(r.Body)
	case "deflate":
		return zlib.NewReader(r.Body)
	case "zstd":
		zr, err := zstd.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		return zstdCloser{zr}, nil
	default:
		return nil, &unsupportedEncoding{ce}
	}
}

type unsupportedEncoding struct{ encoding string }

func (e *unsupportedEncoding) Error() string {
	return "unsupported Content-Encoding " + e.encoding
}

// handleNDJSON handles decompression, NDJSON reading, and error responses for HTTPInput
func (hi *HTTPInput) handleNDJSON(w http.ResponseWriter, r *http.Request, handleLine func(string)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := decodeBody(r)
	if err != nil {
		logger.Error("Cannot decode request body", slog.Any("error", err))
		if _, ok := err.(*unsupportedEncoding); ok {
			w.WriteHeader(http.StatusUnsupportedMediaType)
		} else {
			w.WriteHeader(http.StatusBadRequest)
		}
		return
	}
	defer body.Close()

	reader := bufio.NewReader(body)
	fin := false
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fin = true
		}
		if err != nil && err != io.EOF {
			logger.Error("Error reading request body", slog.Any("error", err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if line = strings.TrimSpace(line); line != "" {
			handleLine(line)
		}
		if fin {
			break
		}
	}
	w.WriteHeader(http.StatusOK)
}
