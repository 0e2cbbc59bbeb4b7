package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/dapp-network/staking-engine/internal/logger"
	"github.com/dapp-network/staking-engine/internal/types"
	"github.com/dapp-network/staking-engine/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// baseAssetDecimals is the display precision of every tracked asset.
const baseAssetDecimals = 18

// EngineView is the read-only engine surface the API serves. Every method is
// a snapshot; nothing here can mutate ledger state.
type EngineView interface {
	Pools() []types.Pool
	Pool(id types.PoolID) (types.Pool, bool)
	Position(pool types.PoolID, account string) (types.UserPosition, bool)
	PendingReward(pool types.PoolID, account string) sdkmath.Int
	Reserves() types.ReserveSnapshot
	PendingClaimCount() int
	RecentEvents(limit int) []types.Event
}

// WebServer handles HTTP requests for engine state visualization
type WebServer struct {
	router *mux.Router
	engine EngineView
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, engine EngineView) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		engine: engine,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{id}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/positions/{pool}/{account}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/pending/{pool}/{account}", ws.handleGetPendingReward).Methods("GET")
	api.HandleFunc("/reserves", ws.handleGetReserves).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
}

// Start begins serving HTTP requests
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting query API server")
	srv := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Router exposes the handler for tests.
func (ws *WebServer) Router() http.Handler {
	return ws.router
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

type poolResponse struct {
	ID                uint64  `json:"id"`
	AllocWeight       uint64  `json:"alloc_weight"`
	TimeLockSeconds   float64 `json:"time_lock_seconds"`
	AccRewardPerShare float64 `json:"acc_reward_per_share"`
	TotalStaked       float64 `json:"total_staked"`
	LastAccrualBlock  int64   `json:"last_accrual_block"`
}

func (ws *WebServer) poolToResponse(p types.Pool) poolResponse {
	acc, err := utils.LegacyDecToFloat64(p.AccRewardPerShare)
	if err != nil {
		webLogger.Warn().Err(err).Uint64("pool", uint64(p.ID)).Msg("Failed to render accumulator")
	}
	staked, err := utils.SDKIntToFloat64(p.TotalStaked, baseAssetDecimals)
	if err != nil {
		webLogger.Warn().Err(err).Uint64("pool", uint64(p.ID)).Msg("Failed to render total staked")
	}
	return poolResponse{
		ID:                uint64(p.ID),
		AllocWeight:       p.AllocWeight,
		TimeLockSeconds:   p.TimeLock.Seconds(),
		AccRewardPerShare: acc,
		TotalStaked:       staked,
		LastAccrualBlock:  p.LastAccrualBlock,
	}
}

func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.engine.Pools()
	out := make([]poolResponse, len(pools))
	for i, p := range pools {
		out[i] = ws.poolToResponse(p)
	}
	ws.writeJSON(w, out)
}

func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid pool id", http.StatusBadRequest)
		return
	}
	pool, ok := ws.engine.Pool(types.PoolID(id))
	if !ok {
		http.Error(w, "pool not found", http.StatusNotFound)
		return
	}
	ws.writeJSON(w, ws.poolToResponse(pool))
}

func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["pool"], 10, 64)
	if err != nil {
		http.Error(w, "invalid pool id", http.StatusBadRequest)
		return
	}
	pos, ok := ws.engine.Position(types.PoolID(id), vars["account"])
	if !ok {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}
	ws.writeJSON(w, pos)
}

func (ws *WebServer) handleGetPendingReward(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["pool"], 10, 64)
	if err != nil {
		http.Error(w, "invalid pool id", http.StatusBadRequest)
		return
	}
	pending := ws.engine.PendingReward(types.PoolID(id), vars["account"])
	asFloat, convErr := utils.SDKIntToFloat64(pending, baseAssetDecimals)
	if convErr != nil {
		webLogger.Warn().Err(convErr).Msg("Failed to render pending reward")
	}
	ws.writeJSON(w, map[string]any{
		"pool":           id,
		"account":        vars["account"],
		"pending_reward": pending.String(),
		"display":        asFloat,
	})
}

func (ws *WebServer) handleGetReserves(w http.ResponseWriter, r *http.Request) {
	snap := ws.engine.Reserves()
	ws.writeJSON(w, map[string]any{
		"reward_supply":          snap.RewardSupply.String(),
		"il_compensation_supply": snap.ILCompensationSupply.String(),
		"pending_burn":           snap.PendingBurn.String(),
		"pending_claims":         ws.engine.PendingClaimCount(),
		"height":                 snap.Height,
		"timestamp":              snap.Timestamp,
	})
}

func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	ws.writeJSON(w, ws.engine.RecentEvents(limit))
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}
