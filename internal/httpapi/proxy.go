package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"inferd/pkg/types"
)

// backendClient forwards requests to backend instances. Timeout 0: every
// forward carries its own context deadline.
var backendClient = &http.Client{Timeout: 0}

// hop-by-hop headers that must not be forwarded in either direction.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// proxyRequestPeek is the only part of the body the proxy interprets; the
// bytes are forwarded to the backend verbatim.
type proxyRequestPeek struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// proxyHandler forwards an OpenAI-compatible request to the backend
// serving the requested model, acquiring (and if needed starting) the
// backend first. Streaming responses are relayed chunk-by-chunk in the
// order and boundaries they arrive, without buffering.
//
// Proxy godoc
// @Summary  Forward a completion request to the model's backend
// @Accept   json
// @Produce  json
// @Param    request body types.ChatCompletionRequest true "OpenAI-compatible request"
// @Success  200 {object} map[string]any
// @Failure  503 {object} types.ErrorResponse
// @Router   /v1/chat/completions [post]
func proxyHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeError(w, http.StatusUnsupportedMediaType, types.ErrorTypeInvalidRequest,
				"Content-Type must be application/json", "")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, types.ErrorTypeInvalidRequest,
				"failed to read request body", "")
			return
		}
		var peek proxyRequestPeek
		if err := json.Unmarshal(body, &peek); err != nil {
			writeError(w, http.StatusBadRequest, types.ErrorTypeInvalidRequest,
				"invalid JSON body", "")
			return
		}
		if strings.TrimSpace(peek.Model) == "" {
			writeError(w, http.StatusBadRequest, types.ErrorTypeInvalidRequest,
				"model is required", "model")
			return
		}

		rid := middleware.GetReqID(r.Context())
		start := time.Now()
		logStart(r, rid, peek.Model, peek.Stream)

		// Join server base context with request context so shutdown
		// cancels in-flight work too.
		joined, cancelJoin := joinContexts(serverBaseCtx, r.Context())
		defer cancelJoin()

		// Bounded wait for acquisition: covers queueing plus start time,
		// independent of the forwarding timeout below.
		acqCtx, cancelAcq := context.WithTimeout(joined, acquireWait)
		endpoint, err := svc.Acquire(acqCtx, peek.Model)
		cancelAcq()
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeServiceError(w, r, peek.Model, err)
			logEnd(r, rid, peek.Model, statusForServiceError(err), time.Since(start), err)
			return
		}
		defer svc.Release(peek.Model)

		fwdCtx, cancelFwd := context.WithTimeout(joined, requestTimeout)
		defer cancelFwd()

		req, err := http.NewRequestWithContext(fwdCtx, r.Method, endpoint+r.URL.Path, bytes.NewReader(body))
		if err != nil {
			writeError(w, http.StatusInternalServerError, types.ErrorTypeServerError,
				"failed to build backend request", "")
			return
		}
		copyHeaders(req.Header, r.Header)
		req.Header.Set("Content-Type", "application/json")

		resp, err := backendClient.Do(req)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			svc.ReportBackendError(peek.Model)
			status := http.StatusBadGateway
			code := "backend_unreachable"
			if fwdCtx.Err() == context.DeadlineExceeded {
				status = http.StatusGatewayTimeout
				code = "request_timeout"
			}
			writeError(w, status, types.ErrorTypeServerError, "backend request failed: "+err.Error(), code)
			logEnd(r, rid, peek.Model, status, time.Since(start), err)
			return
		}
		defer resp.Body.Close()

		streaming := peek.Stream ||
			strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")

		copyHeaders(w.Header(), resp.Header)
		if streaming {
			// The relay may append its own terminal event, so the backend's
			// framing no longer applies.
			w.Header().Del("Content-Length")
		}
		w.WriteHeader(resp.StatusCode)

		if streaming {
			relayStream(w, r, svc, peek.Model, rid, resp.Body)
		} else {
			if _, err := io.Copy(w, resp.Body); err != nil && r.Context().Err() == nil {
				svc.ReportBackendError(peek.Model)
			}
		}
		logEnd(r, rid, peek.Model, resp.StatusCode, time.Since(start), nil)
	}
}

// relayStream copies backend chunks to the client as they arrive,
// preserving order and boundaries. A backend disconnect mid-stream is
// surfaced to the client as an explicit terminal error event, never a
// silent truncation.
func relayStream(w http.ResponseWriter, r *http.Request, svc Service, model, rid string, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Client went away; the deferred Release handles accounting.
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			svc.ReportBackendError(model)
			writeStreamError(w, flusher, rid, "backend disconnected mid-stream")
			return
		}
	}
}

// writeStreamError emits a terminal SSE error event followed by the
// [DONE] sentinel.
func writeStreamError(w io.Writer, flusher http.Flusher, rid, msg string) {
	ev := types.ErrorResponse{Error: types.ErrorDetail{
		Message: msg,
		Type:    types.ErrorTypeStreamInterrupted,
		Code:    "stream_interrupted",
		Param:   rid,
	}}
	b, _ := json.Marshal(ev)
	_, _ = io.WriteString(w, "data: "+string(b)+"\n\ndata: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
