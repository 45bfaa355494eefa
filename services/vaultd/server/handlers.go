package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"stablevault/crypto"
	"stablevault/native/oracle"
	"stablevault/native/vault"
)

const maxBodyBytes = 1 << 16

type vaultView struct {
	Account        string `json:"account"`
	Collateral     string `json:"collateral"`
	Debt           string `json:"debt"`
	RatioPercent   string `json:"ratioPercent,omitempty"`
	LastInstalment uint64 `json:"lastInstalment"`
}

func positionView(pos vault.Position) vaultView {
	ratio := "0"
	if pos.RatioPercent != nil {
		ratio = pos.RatioPercent.Dec()
	}
	return vaultView{
		Account:        pos.Account.String(),
		Collateral:     vault.FormatUnits(pos.Collateral),
		Debt:           vault.FormatUnits(pos.Debt),
		RatioPercent:   ratio,
		LastInstalment: pos.LastInstalment,
	}
}

func (s *Server) vaultViewOf(addr crypto.Address, v *vault.Vault) (vaultView, error) {
	ratio, err := s.engine.CollateralRatioOf(addr)
	priced := true
	if err != nil {
		if vault.KindOf(err) != vault.KindOracleUnavailable {
			return vaultView{}, err
		}
		priced = false
	}
	view := positionView(vault.Position{
		Account:        addr,
		Collateral:     v.Collateral,
		Debt:           v.Debt,
		RatioPercent:   ratio,
		LastInstalment: v.LastInstalment,
	})
	if !priced {
		// Balances stay readable while the oracle is down.
		view.RatioPercent = ""
	}
	return view, nil
}

type mintRequest struct {
	Beneficiary string `json:"beneficiary"`
	Amount      string `json:"amount"`
}

type mintResponse struct {
	Minted    string    `json:"minted"`
	Shortfall string    `json:"shortfall"`
	Vault     vaultView `json:"vault"`
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity", "unauthenticated")
		return
	}
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	beneficiary, ok := parseAccount(w, r, "beneficiary", req.Beneficiary)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}

	start := time.Now()
	result, err := s.engine.Mint(caller, beneficiary, amount)
	s.track("mint", start, err)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	view, err := s.vaultViewOf(beneficiary, result.Vault)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mintResponse{
		Minted:    vault.FormatUnits(result.Minted),
		Shortfall: vault.FormatUnits(result.Shortfall),
		Vault:     view,
	})
}

type repayRequest struct {
	Beneficiary string `json:"beneficiary"`
	Amount      string `json:"amount"`
}

type repayResponse struct {
	Burned   string    `json:"burned"`
	Unlocked string    `json:"unlocked"`
	Fee      string    `json:"fee"`
	Vault    vaultView `json:"vault"`
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	payer, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity", "unauthenticated")
		return
	}
	var req repayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	beneficiary, ok := parseAccount(w, r, "beneficiary", req.Beneficiary)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}

	start := time.Now()
	result, err := s.engine.Repay(payer, beneficiary, amount)
	s.track("repay", start, err)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	view, err := s.vaultViewOf(beneficiary, result.Vault)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repayResponse{
		Burned:   vault.FormatUnits(result.Burned),
		Unlocked: vault.FormatUnits(result.Unlocked),
		Fee:      vault.FormatUnits(result.Fee),
		Vault:    view,
	})
}

type liquidateRequest struct {
	Minter string `json:"minter"`
	Amount string `json:"amount"`
}

type liquidateResponse struct {
	Repaid string `json:"repaid"`
	Seized string `json:"seized"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	liquidator, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity", "unauthenticated")
		return
	}
	var req liquidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	minter, ok := parseAccount(w, r, "minter", req.Minter)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}

	start := time.Now()
	result, err := s.engine.Liquidate(liquidator, minter, amount)
	s.track("liquidate", start, err)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidateResponse{
		Repaid: vault.FormatUnits(result.Repaid),
		Seized: vault.FormatUnits(result.Seized),
	})
}

type governanceRequest struct {
	Value string `json:"value"`
}

func (s *Server) governance(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity", "unauthenticated")
		return
	}
	var req governanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value := strings.TrimSpace(req.Value)
	param := chi.URLParam(r, "param")

	var apply func() error
	switch param {
	case "burn-fee":
		bps, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "value must be an integer", vault.KindInvalidParameter.String())
			return
		}
		apply = func() error { return s.engine.SetBurnFee(caller, bps) }
	case "required-ratio":
		percent, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "value must be an integer", vault.KindInvalidParameter.String())
			return
		}
		apply = func() error { return s.engine.SetRequiredRatio(caller, percent) }
	case "max-instalment-period":
		seconds, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "value must be an integer", vault.KindInvalidParameter.String())
			return
		}
		apply = func() error { return s.engine.SetMaxInstalmentPeriod(caller, seconds) }
	case "min-instalment":
		amount, err := vault.ParseUnits(value)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error(), vault.KindInvalidParameter.String())
			return
		}
		apply = func() error { return s.engine.SetMinInstalmentAmount(caller, amount) }
	case "oracle":
		apply = func() error { return s.engine.SetOracle(caller, value) }
	default:
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("unknown parameter %q", param), vault.KindInvalidParameter.String())
		return
	}

	start := time.Now()
	err := apply()
	s.track("governance."+param, start, err)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.params(w, r)
}

// pushPrice lets the governance actor update a manual feed.
func (s *Server) pushPrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity", "unauthenticated")
		return
	}
	if s.access == nil || !s.access.IsGovernor(caller) {
		writeError(w, r, http.StatusForbidden, vault.ErrUnauthorized.Error(), vault.KindUnauthorized.String())
		return
	}
	var req governanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if s.feeds == nil {
		writeError(w, r, http.StatusNotFound, "no feeds configured", vault.KindOracleUnavailable.String())
		return
	}
	name := chi.URLParam(r, "name")
	feed, err := s.feeds.Feed(name)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error(), vault.KindInvalidParameter.String())
		return
	}
	manual, ok := feed.(*oracle.ManualFeed)
	if !ok {
		writeError(w, r, http.StatusConflict, fmt.Sprintf("feed %q does not accept pushed prices", name), vault.KindInvalidParameter.String())
		return
	}
	if err := manual.SetDecimal(req.Value, time.Now()); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), vault.KindInvalidAmount.String())
		return
	}
	quote, err := manual.Latest()
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err.Error(), vault.KindOracleUnavailable.String())
		return
	}
	loggerFrom(r).Info("manual price updated", slog.String("feed", name), slog.String("account", caller.String()))
	writeJSON(w, http.StatusOK, map[string]string{"feed": name, "price": vault.FormatUnits(quote.Price)})
}

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAccount(w, r, "address", chi.URLParam(r, "address"))
	if !ok {
		return
	}
	v, err := s.engine.Vault(addr)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	view, err := s.vaultViewOf(addr, v)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type positionsResponse struct {
	Count     uint64      `json:"count"`
	Positions []vaultView `json:"positions"`
}

func (s *Server) minters(w http.ResponseWriter, r *http.Request) {
	offset, ok := parseQueryUint(w, r, "offset")
	if !ok {
		return
	}
	limit, ok := parseQueryUint(w, r, "limit")
	if !ok {
		return
	}
	count, err := s.engine.RegisteredMinterCount()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	positions, err := s.engine.Positions(offset, limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionsResponse{Count: count, Positions: views(positions)})
}

func (s *Server) delinquent(w http.ResponseWriter, r *http.Request) {
	positions, err := s.engine.Delinquent()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionsResponse{Count: uint64(len(positions)), Positions: views(positions)})
}

func views(positions []vault.Position) []vaultView {
	out := make([]vaultView, 0, len(positions))
	for _, pos := range positions {
		out = append(out, positionView(pos))
	}
	return out
}

type paramsResponse struct {
	BurnFeeBps           uint64 `json:"burnFeeBps"`
	RequiredRatioPercent uint64 `json:"requiredRatioPercent"`
	MaxInstalmentPeriod  uint64 `json:"maxInstalmentPeriod"`
	MinInstalmentAmount  string `json:"minInstalmentAmount"`
	Oracle               string `json:"oracle"`
}

func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	params, err := s.engine.Params()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paramsResponse{
		BurnFeeBps:           params.BurnFeeBps,
		RequiredRatioPercent: params.RequiredRatioPercent,
		MaxInstalmentPeriod:  params.MaxInstalmentPeriod,
		MinInstalmentAmount:  vault.FormatUnits(params.MinInstalmentAmount),
		Oracle:               params.OracleRef,
	})
}

func (s *Server) price(w http.ResponseWriter, r *http.Request) {
	price, err := s.engine.CollateralPrice()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": vault.FormatUnits(price)})
}

type eventView struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, r, http.StatusNotFound, "event archive disabled", "unavailable")
		return
	}
	limit, ok := parseQueryUint(w, r, "limit")
	if !ok {
		return
	}
	records, err := s.events.Recent(r.Context(), int(limit), r.URL.Query().Get("type"))
	if err != nil {
		loggerFrom(r).Error("event query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), vault.KindInternal.String())
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			loggerFrom(r).Warn("skipping undecodable event", "seq", rec.Seq, "error", err)
			continue
		}
		out = append(out, eventView{
			Seq:        rec.Seq,
			ID:         rec.ID.String(),
			Type:       evt.Type,
			Attributes: evt.Attributes,
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return false
	}
	return true
}

func parseAccount(w http.ResponseWriter, r *http.Request, field, raw string) (crypto.Address, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, field+" required", vault.KindInvalidBeneficiary.String())
		return crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("%s: %v", field, err), vault.KindInvalidBeneficiary.String())
		return crypto.Address{}, false
	}
	return addr, true
}

func parseAmount(w http.ResponseWriter, r *http.Request, raw string) (*uint256.Int, bool) {
	amount, err := vault.ParseUnits(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "amount: "+err.Error(), vault.KindInvalidAmount.String())
		return nil, false
	}
	return amount, true
}

func parseQueryUint(w http.ResponseWriter, r *http.Request, key string) (uint64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, key+" must be a non-negative integer", "bad_request")
		return 0, false
	}
	return v, true
}
