package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"

	"github.com/sylphx/lens/pkg/httpx"
	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/transport"
	"github.com/sylphx/lens/pkg/utils"
)

// buildRouter sets up all HTTP routes.
func (a *App) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/v1/lens", httpx.NetHTTPAdapter(a.lensHandler())).Methods(http.MethodPost)
	r.HandleFunc("/v1/lens/subscribe", a.subscribeHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// lensHandler serves the request envelope. It is engine-neutral so the
// same handler runs under net/http here and under fasthttp for
// embedders that serve with FastHTTPHandler.
func (a *App) lensHandler() httpx.HandlerFunc {
	return func(w httpx.ResponseWriter, r *httpx.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, &transport.Error{Code: transport.CodeBadRequest, Status: http.StatusBadRequest, Message: "cannot read body"})
			return
		}
		var req transport.Request
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, &transport.Error{Code: transport.CodeBadRequest, Status: http.StatusBadRequest, Message: err.Error()})
			return
		}
		resp, werr := a.handler.Handle(r.Ctx, req)
		if werr != nil {
			writeError(w, werr)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// FastHTTPHandler exposes the envelope endpoint as a fasthttp handler.
func (a *App) FastHTTPHandler() fasthttp.RequestHandler {
	return httpx.FastHTTPAdapter(a.lensHandler())
}

// subscribeHandler serves SSE subscription streams. The target is
// addressed by query params: ?path=message&id=m1 pins an item channel,
// ?path=message alone follows the list channel.
func (a *App) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := utils.SplitPath(q.Get("path"))
	if len(path) == 0 {
		utils.JSONError(w, http.StatusBadRequest, "missing path query parameter")
		return
	}
	input := map[string]any{}
	if id := q.Get("id"); id != "" {
		input["id"] = id
	}

	stream, werr := transport.NewStream(a.router, a.bus, transport.Request{
		Type:  "subscription",
		Path:  path,
		Input: input,
	}, a.strat)
	if werr != nil {
		utils.JSONError(w, werr.Status, werr.Message)
		return
	}
	stream.MaxPayload = int(a.eff.Config.Strategy.MaxWirePayload)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger.Info("subscription_opened", "channel", stream.Channel, "sub", stream.SubID, "remote", r.RemoteAddr)
	if err := stream.Run(r.Context(), w); err != nil {
		logger.Warn("subscription_stream_error", "sub", stream.SubID, "error", err)
	}
	logger.Info("subscription_closed", "channel", stream.Channel, "sub", stream.SubID)
}

// readyzHandler reports readiness of the store.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !a.db.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": ver})
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w httpx.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL","message":"encoding failed"}}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w httpx.ResponseWriter, werr *transport.Error) {
	writeJSON(w, werr.Status, map[string]any{"error": werr})
}

// startHTTP builds the handler, starts the HTTP server in a goroutine
// and returns a channel that will carry any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	a.srv = &http.Server{Addr: a.eff.Addr, Handler: a.buildRouter()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.eff.Addr)
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}
