// Package server exposes the engine's numbered method surface (spec.md §6)
// over HTTP: a chi router for the on-chain-facing API, a gorilla/mux router
// for the off-chain resolver's finalize_blob callback, and a prometheus
// /metrics endpoint, mirroring the teacher's cmd/xchainserver/server
// package structure (routes.go/handlers.go/middleware.go) with the
// bridge/relayer method table replaced by this engine's method table.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hoku-labs/blobengine/core"
)

// API is the chi-routed, host-facing method surface server. It wraps a
// *core.Ledger the way the teacher's handlers wrap package-level core
// functions, but takes it as an explicit dependency since this engine has
// no global singleton ledger.
type API struct {
	ledger *core.Ledger
	router *chi.Mux
}

// NewAPI builds the chi router for every method in spec.md §6's table
// except SetBlobPending/FinalizeBlob, which are validator-only and served
// by the separate callback router (see callback.go).
func NewAPI(ledger *core.Ledger) *API {
	a := &API{ledger: ledger, router: chi.NewRouter()}
	a.router.Use(CorrelationID)
	a.router.Use(RequestLogger)
	a.router.Use(JSONHeaders)

	r := a.router
	r.Post("/v1/buy-credit", a.handleBuyCredit)
	r.Post("/v1/approve-credit", a.handleApproveCredit)
	r.Post("/v1/revoke-credit", a.handleRevokeCredit)
	r.Get("/v1/accounts/{address}", a.handleGetAccount)
	r.Get("/v1/accounts/{address}/approvals/{receiver}", a.handleGetCreditApproval)
	r.Post("/v1/blobs", a.handleAddBlob)
	r.Get("/v1/blobs/{hash}", a.handleGetBlob)
	r.Get("/v1/blobs/{hash}/status", a.handleGetBlobStatus)
	r.Get("/v1/blobs/added", a.handleGetAddedBlobs)
	r.Get("/v1/blobs/pending", a.handleGetPendingBlobs)
	r.Delete("/v1/blobs/{hash}", a.handleDeleteBlob)
	r.Get("/v1/stats", a.handleGetStats)
	r.Post("/v1/read-requests", a.handleOpenReadRequest)
	r.Delete("/v1/read-requests/{id}", a.handleCloseReadRequest)
	r.Get("/v1/read-requests", a.handleGetOpenReadRequests)
	return a
}

// ServeHTTP lets API be used directly as an http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}
