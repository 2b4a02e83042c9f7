package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"OptionVault/internal/core"
	"OptionVault/internal/fixedpoint"
	"OptionVault/internal/query"
	"OptionVault/internal/vault"
)

// callerHeader names the header carrying the caller's address. The
// service trusts its perimeter for authentication; the engine only
// needs a consistent identity per caller.
const callerHeader = "X-Caller"

func (s *Server) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/series", s.handleGetSeries},
		{"POST", "/v1/vaults", s.handleOpenVault},
		{"GET", "/v1/vaults", s.handleListVaults},
		{"GET", "/v1/vaults/{owner}", s.handleGetVault},
		{"POST", "/v1/vaults/{owner}/collateral", s.handleAddCollateral},
		{"DELETE", "/v1/vaults/{owner}/collateral", s.handleRemoveCollateral},
		{"POST", "/v1/vaults/{owner}/obligations", s.handleIssueObligations},
		{"DELETE", "/v1/vaults/{owner}/obligations", s.handleBurnObligations},
		{"POST", "/v1/vaults/{owner}/redeem", s.handleRedeem},
		{"POST", "/v1/vaults/{owner}/underlying/withdraw", s.handleWithdrawUnderlying},
		{"POST", "/v1/vaults/{owner}/liquidate", s.handleLiquidate},
		{"GET", "/v1/vaults/{owner}/safe", s.handleVaultSafe},
		{"GET", "/v1/vaults/{owner}/liquidatable", s.handleVaultLiquidatable},
		{"GET", "/v1/vaults/{owner}/exercises", s.handleExerciseHistory},
		{"GET", "/v1/vaults/{owner}/liquidations", s.handleLiquidationHistory},
		{"POST", "/v1/exercise", s.handleExercise},
		{"POST", "/v1/admin/parameters", s.handleUpdateParameters},
		{"POST", "/v1/admin/details", s.handleSetDetails},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

// --- mutating routes ---

func (s *Server) handleOpenVault(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.OpenVault(caller, now)
	})
	if err != nil {
		s.writeError(w, "open_vault", err)
		return
	}
	s.writeJSON(w, "open_vault", http.StatusCreated, map[string]interface{}{
		"owner": caller.Hex(),
	})
}

func (s *Server) handleAddCollateral(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	if caller != owner {
		s.writeError(w, "add_collateral", core.ErrNotOwner)
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}

	now := s.now()
	var newBalance *big.Int
	err := s.serializer.Do(r.Context(), func() error {
		var err error
		newBalance, err = s.engine.AddCollateral(owner, amount, now)
		return err
	})
	if err != nil {
		s.writeError(w, "add_collateral", err)
		return
	}
	s.writeJSON(w, "add_collateral", http.StatusOK, map[string]interface{}{
		"owner":       owner.Hex(),
		"new_balance": newBalance.String(),
	})
}

func (s *Server) handleRemoveCollateral(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	if caller != owner {
		s.writeError(w, "remove_collateral", core.ErrNotOwner)
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}

	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.RemoveCollateral(owner, amount, now)
	})
	if err != nil {
		s.writeError(w, "remove_collateral", err)
		return
	}
	s.writeJSON(w, "remove_collateral", http.StatusOK, map[string]interface{}{
		"owner":  owner.Hex(),
		"amount": amount.String(),
	})
}

func (s *Server) handleIssueObligations(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	if caller != owner {
		s.writeError(w, "issue_obligations", core.ErrNotOwner)
		return
	}

	var req struct {
		Receiver string `json:"receiver"`
		Count    string `json:"count"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	receiver := owner
	if req.Receiver != "" {
		if !common.IsHexAddress(req.Receiver) {
			s.badRequest(w, "invalid receiver address")
			return
		}
		receiver = common.HexToAddress(req.Receiver)
	}
	count, ok := s.parseAmount(w, req.Count)
	if !ok {
		return
	}

	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.IssueObligations(owner, receiver, count, now)
	})
	if err != nil {
		s.writeError(w, "issue_obligations", err)
		return
	}
	s.writeJSON(w, "issue_obligations", http.StatusOK, map[string]interface{}{
		"owner":    owner.Hex(),
		"receiver": receiver.Hex(),
		"count":    count.String(),
	})
}

func (s *Server) handleBurnObligations(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	if caller != owner {
		s.writeError(w, "burn_obligations", core.ErrNotOwner)
		return
	}

	var req struct {
		Count string `json:"count"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	count, ok := s.parseAmount(w, req.Count)
	if !ok {
		return
	}

	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.BurnObligations(owner, count, now)
	})
	if err != nil {
		s.writeError(w, "burn_obligations", err)
		return
	}
	s.writeJSON(w, "burn_obligations", http.StatusOK, map[string]interface{}{
		"owner": owner.Hex(),
		"count": count.String(),
	})
}

func (s *Server) handleExercise(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount      string   `json:"amount"`
		VaultOwners []string `json:"vault_owners"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	owners := make([]common.Address, 0, len(req.VaultOwners))
	for _, o := range req.VaultOwners {
		if !common.IsHexAddress(o) {
			s.badRequest(w, fmt.Sprintf("invalid vault owner address %q", o))
			return
		}
		owners = append(owners, common.HexToAddress(o))
	}

	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.Exercise(caller, amount, owners, now)
	})
	if err != nil {
		s.writeError(w, "exercise", err)
		return
	}
	s.writeJSON(w, "exercise", http.StatusOK, map[string]interface{}{
		"exerciser": caller.Hex(),
		"amount":    amount.String(),
	})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}

	var req struct {
		Count string `json:"count"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	count, ok := s.parseAmount(w, req.Count)
	if !ok {
		return
	}

	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.Liquidate(caller, owner, count, now)
	})
	if err != nil {
		s.writeError(w, "liquidate", err)
		return
	}
	s.writeJSON(w, "liquidate", http.StatusOK, map[string]interface{}{
		"liquidator":  caller.Hex(),
		"vault_owner": owner.Hex(),
		"count":       count.String(),
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	if caller != owner {
		s.writeError(w, "redeem", core.ErrNotOwner)
		return
	}

	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.RedeemVaultBalance(owner, now)
	})
	if err != nil {
		s.writeError(w, "redeem", err)
		return
	}
	s.writeJSON(w, "redeem", http.StatusOK, map[string]interface{}{
		"owner": owner.Hex(),
	})
}

func (s *Server) handleWithdrawUnderlying(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	if caller != owner {
		s.writeError(w, "withdraw_underlying", core.ErrNotOwner)
		return
	}

	now := s.now()
	var withdrawn *big.Int
	err := s.serializer.Do(r.Context(), func() error {
		var err error
		withdrawn, err = s.engine.RemoveUnderlying(owner, now)
		return err
	})
	if err != nil {
		s.writeError(w, "withdraw_underlying", err)
		return
	}
	s.writeJSON(w, "withdraw_underlying", http.StatusOK, map[string]interface{}{
		"owner":  owner.Hex(),
		"amount": withdrawn.String(),
	})
}

func (s *Server) handleUpdateParameters(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		IncentiveValue int64 `json:"incentive_value"`
		IncentiveExp   int32 `json:"incentive_exp"`
		FactorValue    int64 `json:"factor_value"`
		FactorExp      int32 `json:"factor_exp"`
		MinRatioValue  int64 `json:"min_ratio_value"`
		MinRatioExp    int32 `json:"min_ratio_exp"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	p := vault.Params{
		LiquidationIncentive:      fixedpoint.New(req.IncentiveValue, req.IncentiveExp),
		LiquidationFactor:         fixedpoint.New(req.FactorValue, req.FactorExp),
		MinCollateralizationRatio: fixedpoint.New(req.MinRatioValue, req.MinRatioExp),
	}

	now := s.now()
	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.UpdateParameters(caller, p, now)
	})
	if err != nil {
		s.writeError(w, "update_parameters", err)
		return
	}
	s.writeJSON(w, "update_parameters", http.StatusOK, map[string]interface{}{
		"updated": true,
	})
}

func (s *Server) handleSetDetails(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	err := s.serializer.Do(r.Context(), func() error {
		return s.engine.SetDetails(caller, req.Name, req.Symbol)
	})
	if err != nil {
		s.writeError(w, "set_details", err)
		return
	}
	s.writeJSON(w, "set_details", http.StatusOK, map[string]interface{}{
		"name":   req.Name,
		"symbol": req.Symbol,
	})
}

// --- read routes ---

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var resp map[string]interface{}
	err := s.serializer.Do(r.Context(), func() error {
		terms := s.engine.Terms()
		p := s.engine.Params()
		resp = map[string]interface{}{
			"collateral_asset": terms.CollateralAsset.Hex(),
			"underlying_asset": terms.UnderlyingAsset.Hex(),
			"strike_asset":     terms.StrikeAsset.Hex(),
			"strike_price":     terms.StrikePrice.String(),
			"expiry":           terms.Expiry.Format(time.RFC3339),
			"window_size":      terms.WindowSize.String(),
			"parameters": map[string]string{
				"liquidation_incentive": p.LiquidationIncentive.String(),
				"liquidation_factor":    p.LiquidationFactor.String(),
				"min_ratio":             p.MinCollateralizationRatio.String(),
			},
			"sequence": s.engine.Sequence(),
		}
		return nil
	})
	if err != nil {
		s.writeError(w, "get_series", err)
		return
	}
	s.writeJSON(w, "get_series", http.StatusOK, resp)
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	v, err := s.query.GetVault(r.Context(), owner.Hex())
	if err != nil {
		s.writeError(w, "get_vault", err)
		return
	}
	s.writeJSON(w, "get_vault", http.StatusOK, v)
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit := queryLimit(r, 50, 500)
	after := r.URL.Query().Get("after")

	vaults, err := s.query.ListVaults(r.Context(), limit, after)
	if err != nil {
		s.writeError(w, "list_vaults", err)
		return
	}
	s.writeJSON(w, "list_vaults", http.StatusOK, map[string]interface{}{
		"vaults": vaults,
	})
}

func (s *Server) handleVaultSafe(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	var safe bool
	err := s.serializer.Do(r.Context(), func() error {
		var err error
		safe, err = s.engine.VaultIsSafe(owner)
		return err
	})
	if err != nil {
		s.writeError(w, "vault_safe", err)
		return
	}
	s.writeJSON(w, "vault_safe", http.StatusOK, map[string]interface{}{
		"owner": owner.Hex(),
		"safe":  safe,
	})
}

func (s *Server) handleVaultLiquidatable(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	var max *big.Int
	err := s.serializer.Do(r.Context(), func() error {
		var err error
		max, err = s.engine.MaxObligationsLiquidatable(owner)
		return err
	})
	if err != nil {
		s.writeError(w, "vault_liquidatable", err)
		return
	}
	s.writeJSON(w, "vault_liquidatable", http.StatusOK, map[string]interface{}{
		"owner":           owner.Hex(),
		"max_obligations": max.String(),
		"liquidatable":    max.Sign() > 0,
	})
}

func (s *Server) handleExerciseHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	limit := queryLimit(r, 50, 500)
	before := queryCursor(r)

	history, err := s.query.GetExerciseHistory(r.Context(), owner.Hex(), limit, before)
	if err != nil {
		s.writeError(w, "exercise_history", err)
		return
	}
	s.writeJSON(w, "exercise_history", http.StatusOK, map[string]interface{}{
		"history": history,
	})
}

func (s *Server) handleLiquidationHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	owner, ok := s.ownerParam(w, pathParams)
	if !ok {
		return
	}
	limit := queryLimit(r, 50, 500)
	before := queryCursor(r)

	history, err := s.query.GetLiquidationHistory(r.Context(), owner.Hex(), limit, before)
	if err != nil {
		s.writeError(w, "liquidation_history", err)
		return
	}
	s.writeJSON(w, "liquidation_history", http.StatusOK, map[string]interface{}{
		"history": history,
	})
}

// --- helpers ---

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	h := r.Header.Get(callerHeader)
	if h == "" {
		s.badRequest(w, fmt.Sprintf("%s header is required", callerHeader))
		return common.Address{}, false
	}
	if !common.IsHexAddress(h) {
		s.badRequest(w, fmt.Sprintf("invalid %s address", callerHeader))
		return common.Address{}, false
	}
	return common.HexToAddress(h), true
}

func (s *Server) ownerParam(w http.ResponseWriter, pathParams map[string]string) (common.Address, bool) {
	o := pathParams["owner"]
	if !common.IsHexAddress(o) {
		s.badRequest(w, "invalid owner address")
		return common.Address{}, false
	}
	return common.HexToAddress(o), true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.badRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) parseAmount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	if raw == "" {
		s.badRequest(w, "amount is required")
		return nil, false
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		s.badRequest(w, fmt.Sprintf("invalid amount %q", raw))
		return nil, false
	}
	return amount, true
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{"error": msg})
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, err error) {
	status := errStatus(err)
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
	writeJSONStatus(w, status, map[string]interface{}{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, status int, body interface{}) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
	writeJSONStatus(w, status, body)
}

func writeJSONStatus(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// errStatus maps engine rejections onto HTTP statuses. Anything the
// engine refused on its own rules is a 422; genuine lookup misses are
// 404s; permission failures are 403s.
func errStatus(err error) int {
	switch {
	case errors.Is(err, vault.ErrVaultNotFound), errors.Is(err, query.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrVaultAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, core.ErrContractExpired),
		errors.Is(err, core.ErrNotExpired),
		errors.Is(err, core.ErrOutsideExerciseWindow),
		errors.Is(err, core.ErrZeroAmount),
		errors.Is(err, core.ErrUnsafeMint),
		errors.Is(err, core.ErrWouldBeUnsafe),
		errors.Is(err, core.ErrNoUnderlyingBalance),
		errors.Is(err, core.ErrNothingToRedeem),
		errors.Is(err, core.ErrZeroExercise),
		errors.Is(err, core.ErrExceedsVaultObligations),
		errors.Is(err, core.ErrInsufficientCallerBalance),
		errors.Is(err, core.ErrZeroUnderlying),
		errors.Is(err, core.ErrVaultUnderwater),
		errors.Is(err, core.ErrInsufficientVaultsSupplied),
		errors.Is(err, core.ErrVaultIsSafe),
		errors.Is(err, core.ErrSelfLiquidation),
		errors.Is(err, core.ErrExceedsLiquidationFactor),
		errors.Is(err, vault.ErrUnderflow),
		errors.Is(err, vault.ErrInsufficientCollateral):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func queryCursor(r *http.Request) *int64 {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
