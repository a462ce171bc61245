package server

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"scorched/server/domain"
	"scorched/server/handler"
)

func Route(pubsub domain.PubSub, matchManager domain.MatchManager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler.NewAcceptHandler(pubsub, matchManager))
	mux.Handle("/health", handler.NewHealthHandler())
	return otelhttp.NewHandler(mux, "server")
}
