package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/hoku-labs/blobengine/core"
)

// CallbackServer is the resolver-facing webhook the off-chain network posts
// finalize_blob verdicts to, mirroring the teacher's cross-chain relayer
// callback server (cmd/xchainserver/server/routes.go) but with the
// bridge/relayer endpoints replaced by SetBlobPending/FinalizeBlob.
type CallbackServer struct {
	ledger *core.Ledger
	router *mux.Router
}

// NewCallbackServer builds the validator-only router: SetBlobPending is
// called once the resolver begins fetching a blob, FinalizeBlob once it
// reaches a terminal verdict.
func NewCallbackServer(ledger *core.Ledger) *CallbackServer {
	c := &CallbackServer{ledger: ledger, router: mux.NewRouter()}
	c.router.HandleFunc("/callback/set-pending", c.handleSetPending).Methods(http.MethodPost)
	c.router.HandleFunc("/callback/finalize", c.handleFinalize).Methods(http.MethodPost)
	return c
}

func (c *CallbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.router.ServeHTTP(w, r)
}

type setPendingRequest struct {
	Subscriber string `json:"subscriber"`
	Hash       string `json:"hash"`
	Source     string `json:"source"`
	ID         string `json:"id"`
}

func (c *CallbackServer) handleSetPending(w http.ResponseWriter, r *http.Request) {
	var req setPendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subscriber, err := core.AddressFromHex(req.Subscriber)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash, err := core.HashFromString(req.Hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	source, err := decodePublicKey(req.Source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := subscriptionIDFromHex(req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.ledger.SetBlobPending(source, subscriber, hash, id); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	log.WithFields(log.Fields{"blob": hash.String(), "subscriber": subscriber.String()}).Info("resolver began fetching blob")
	w.WriteHeader(http.StatusNoContent)
}

type finalizeRequest struct {
	Subscriber string `json:"subscriber"`
	Hash       string `json:"hash"`
	ID         string `json:"id"`
	Status     string `json:"status"`
	Epoch      int64  `json:"epoch"`
}

func (c *CallbackServer) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subscriber, err := core.AddressFromHex(req.Subscriber)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash, err := core.HashFromString(req.Hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := subscriptionIDFromHex(req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var status core.BlobStatus
	switch req.Status {
	case "resolved":
		status = core.BlobStatusResolved
	case "failed":
		status = core.BlobStatusFailed
	default:
		http.Error(w, "status must be \"resolved\" or \"failed\"", http.StatusBadRequest)
		return
	}
	if err := c.ledger.FinalizeBlob(subscriber, hash, id, status, core.ChainEpoch(req.Epoch)); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	log.WithFields(log.Fields{"blob": hash.String(), "subscriber": subscriber.String(), "status": req.Status}).Info("blob finalized by resolver")
	w.WriteHeader(http.StatusNoContent)
}
