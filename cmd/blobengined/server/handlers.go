package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hoku-labs/blobengine/core"
)

// callerAddress reads the caller identity the host runtime would otherwise
// inject. spec.md §1 treats "actor host runtime... caller validation" as an
// out-of-scope collaborator; this header stands in for that binding so the
// HTTP surface has something to pass as the transition's caller argument.
func callerAddress(r *http.Request) (core.Address, error) {
	return core.AddressFromHex(r.Header.Get("X-Caller-Address"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if ee, ok := err.(*core.EngineError); ok {
		switch ee.Kind {
		case core.KindIllegalArgument:
			status = http.StatusBadRequest
		case core.KindInsufficientFunds, core.KindCapacity:
			status = http.StatusPaymentRequired
		case core.KindNotFound:
			status = http.StatusNotFound
		case core.KindForbidden:
			status = http.StatusForbidden
		case core.KindIllegalState:
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type buyCreditRequest struct {
	Address string `json:"address"`
	Atto    string `json:"atto_tokens"`
	Epoch   int64  `json:"epoch"`
}

func (a *API) handleBuyCredit(w http.ResponseWriter, r *http.Request) {
	var req buyCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	addr, err := core.AddressFromHex(req.Address)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	atto, ok := new(big.Int).SetString(req.Atto, 10)
	if !ok {
		writeError(w, core.IllegalArgument(err))
		return
	}
	acct, err := a.ledger.BuyCredit(addr, atto, core.ChainEpoch(req.Epoch))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type approveCreditRequest struct {
	From           string `json:"from"`
	Receiver       string `json:"receiver"`
	RequiredCaller string `json:"required_caller,omitempty"`
	Limit          string `json:"limit,omitempty"`
	TTL            *int64 `json:"ttl,omitempty"`
	Epoch          int64  `json:"epoch"`
}

func (a *API) handleApproveCredit(w http.ResponseWriter, r *http.Request) {
	var req approveCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	from, err := core.AddressFromHex(req.From)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	receiver, err := core.AddressFromHex(req.Receiver)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	var requiredCaller *core.Address
	if req.RequiredCaller != "" {
		rc, err := core.AddressFromHex(req.RequiredCaller)
		if err != nil {
			writeError(w, core.IllegalArgument(err))
			return
		}
		requiredCaller = &rc
	}
	var limit *big.Int
	if req.Limit != "" {
		l, ok := new(big.Int).SetString(req.Limit, 10)
		if !ok {
			writeError(w, core.IllegalArgument(err))
			return
		}
		limit = l
	}
	var ttl *core.ChainEpoch
	if req.TTL != nil {
		t := core.ChainEpoch(*req.TTL)
		ttl = &t
	}
	appr, err := a.ledger.ApproveCredit(from, receiver, requiredCaller, limit, ttl, core.ChainEpoch(req.Epoch))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appr)
}

type revokeCreditRequest struct {
	From           string `json:"from"`
	Receiver       string `json:"receiver"`
	RequiredCaller string `json:"required_caller,omitempty"`
}

func (a *API) handleRevokeCredit(w http.ResponseWriter, r *http.Request) {
	var req revokeCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	from, err := core.AddressFromHex(req.From)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	receiver, err := core.AddressFromHex(req.Receiver)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	var requiredCaller *core.Address
	if req.RequiredCaller != "" {
		rc, err := core.AddressFromHex(req.RequiredCaller)
		if err != nil {
			writeError(w, core.IllegalArgument(err))
			return
		}
		requiredCaller = &rc
	}
	if err := a.ledger.RevokeCredit(from, receiver, requiredCaller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := core.AddressFromHex(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	acct, err := a.ledger.GetAccount(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) handleGetCreditApproval(w http.ResponseWriter, r *http.Request) {
	from, err := core.AddressFromHex(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	receiver, err := core.AddressFromHex(chi.URLParam(r, "receiver"))
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	var requiredCaller *core.Address
	if c := r.URL.Query().Get("caller"); c != "" {
		rc, err := core.AddressFromHex(c)
		if err != nil {
			writeError(w, core.IllegalArgument(err))
			return
		}
		requiredCaller = &rc
	}
	appr, err := a.ledger.GetCreditApproval(from, receiver, requiredCaller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appr)
}

type addBlobRequest struct {
	Subscriber   string `json:"subscriber"`
	Sponsor      string `json:"sponsor,omitempty"`
	Source       string `json:"source"`
	Hash         string `json:"hash"`
	MetadataHash string `json:"metadata_hash"`
	ID           string `json:"id,omitempty"`
	Size         uint64 `json:"size"`
	TTL          *int64 `json:"ttl,omitempty"`
	Epoch        int64  `json:"epoch"`
}

func (a *API) handleAddBlob(w http.ResponseWriter, r *http.Request) {
	var req addBlobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	subscriber, err := core.AddressFromHex(req.Subscriber)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	var sponsor *core.Address
	if req.Sponsor != "" {
		sp, err := core.AddressFromHex(req.Sponsor)
		if err != nil {
			writeError(w, core.IllegalArgument(err))
			return
		}
		sponsor = &sp
	}
	source, err := decodePublicKey(req.Source)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	hash, err := core.HashFromString(req.Hash)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	metaHash, err := core.HashFromString(req.MetadataHash)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	var ttl *core.ChainEpoch
	if req.TTL != nil {
		t := core.ChainEpoch(*req.TTL)
		ttl = &t
	}
	acct, err := a.ledger.AddBlob(subscriber, caller, core.ChainEpoch(req.Epoch), core.AddBlobParams{
		Sponsor:      sponsor,
		Source:       source,
		Hash:         hash,
		MetadataHash: metaHash,
		ID:           core.SubscriptionIDFromBytes([]byte(req.ID)),
		Size:         req.Size,
		TTL:          ttl,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	hash, err := core.HashFromString(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	blob, err := a.ledger.GetBlob(hash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blob)
}

func (a *API) handleGetBlobStatus(w http.ResponseWriter, r *http.Request) {
	hash, err := core.HashFromString(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	status, err := a.ledger.GetBlobStatus(hash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

func (a *API) handleGetAddedBlobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ledger.GetAddedBlobs(queryLimit(r)))
}

func (a *API) handleGetPendingBlobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ledger.GetPendingBlobs(queryLimit(r)))
}

type deleteBlobRequest struct {
	ID      string `json:"id,omitempty"`
	Sponsor string `json:"sponsor,omitempty"`
}

func (a *API) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	hash, err := core.HashFromString(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	caller, err := callerAddress(r)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	var req deleteBlobRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, core.IllegalArgument(err))
			return
		}
	}
	var sponsor *core.Address
	if req.Sponsor != "" {
		sp, err := core.AddressFromHex(req.Sponsor)
		if err != nil {
			writeError(w, core.IllegalArgument(err))
			return
		}
		sponsor = &sp
	}
	epoch := core.ChainEpoch(0)
	if e := r.URL.Query().Get("epoch"); e != "" {
		if n, err := strconv.ParseInt(e, 10, 64); err == nil {
			epoch = core.ChainEpoch(n)
		}
	}
	acct, err := a.ledger.DeleteBlob(caller, sponsor, hash, core.SubscriptionIDFromBytes([]byte(req.ID)), epoch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ledger.GetStats())
}

type openReadRequestRequest struct {
	Hash           string `json:"hash"`
	Offset         uint32 `json:"offset"`
	CallbackAddr   string `json:"callback_addr"`
	CallbackMethod uint64 `json:"callback_method"`
	Epoch          int64  `json:"epoch"`
}

func (a *API) handleOpenReadRequest(w http.ResponseWriter, r *http.Request) {
	var req openReadRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	hash, err := core.HashFromString(req.Hash)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	callbackAddr, err := core.AddressFromHex(req.CallbackAddr)
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	id, err := a.ledger.OpenReadRequest(hash, req.Offset, callbackAddr, req.CallbackMethod, core.ChainEpoch(req.Epoch))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"request_id": id.String()})
}

func (a *API) handleCloseReadRequest(w http.ResponseWriter, r *http.Request) {
	id, err := core.HashFromString(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, core.IllegalArgument(err))
		return
	}
	if err := a.ledger.CloseReadRequest(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetOpenReadRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ledger.GetOpenReadRequests(queryLimit(r)))
}

func queryLimit(r *http.Request) uint32 {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return 0
	}
	n, err := strconv.ParseInt(q, 10, 32)
	if err != nil || n < 0 {
		return 0
	}
	return uint32(n)
}
