// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves evaluated market views over HTTP and streams updates
// to WebSocket clients.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/lendcalc/internal/common"
	"github.com/blinklabs-io/lendcalc/internal/logging"
	"github.com/blinklabs-io/lendcalc/internal/market"
	"github.com/blinklabs-io/lendcalc/internal/pricefeed"
	"github.com/gorilla/websocket"
)

// PriceSource lists stored oracle observations
type PriceSource interface {
	Observations() ([]pricefeed.Observation, error)
}

// Option configures an API
type Option func(*API)

// WithPrices serves the observations of src at /api/v1/prices
func WithPrices(src PriceSource) Option {
	return func(a *API) {
		a.prices = src
	}
}

// API holds the latest view and the connected stream clients
type API struct {
	mu          sync.RWMutex
	view        *market.View
	prices      PriceSource
	subscribers []chan *market.View
	subMu       sync.Mutex
	upgrader    websocket.Upgrader
	wsConns     map[*websocket.Conn]bool
	wsMu        sync.RWMutex
	writeMu     sync.Mutex
}

// New returns an API with no view loaded
func New(opts ...Option) *API {
	a := &API{
		wsConns: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkWebSocketOrigin,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// checkWebSocketOrigin allows same-origin requests, localhost and clients
// that send no Origin header
func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	originHost := extractHost(origin)
	if originHost == "" {
		return false
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	// Compare without the port when the origin carries none
	if !strings.Contains(originHost, ":") {
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}
	}
	return originHost == host
}

func extractHost(urlStr string) string {
	if idx := strings.Index(urlStr, "://"); idx != -1 {
		urlStr = urlStr[idx+3:]
	}
	if idx := strings.Index(urlStr, "/"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	return urlStr
}

// Update replaces the served view and notifies subscribers
func (a *API) Update(view *market.View) {
	a.mu.Lock()
	a.view = view
	a.mu.Unlock()

	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subscribers {
		// Replace an undelivered view so a slow subscriber gets the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}

// Subscribe returns a channel receiving every new view
func (a *API) Subscribe() <-chan *market.View {
	ch := make(chan *market.View, 1)
	a.subMu.Lock()
	a.subscribers = append(a.subscribers, ch)
	a.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to a channel returned by Subscribe and closes it
func (a *API) Unsubscribe(ch <-chan *market.View) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for i, sub := range a.subscribers {
		if sub == ch {
			a.subscribers = append(a.subscribers[:i], a.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (a *API) getView() *market.View {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.view
}

// RegisterHandlers registers HTTP handlers on the given ServeMux
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/view", a.HandleGetView)
	mux.HandleFunc("/api/v1/markets", a.HandleListMarkets)
	mux.HandleFunc("/api/v1/markets/", a.HandleGetMarket)
	mux.HandleFunc("/api/v1/positions", a.HandleListPositions)
	mux.HandleFunc("/api/v1/listings", a.HandleListListings)
	mux.HandleFunc("/api/v1/prices", a.HandleListPrices)
	mux.HandleFunc("/ws/listings", a.HandleListingStream)
}

// StartServer starts the HTTP server and the WebSocket broadcaster
func (a *API) StartServer(addr string) error {
	logger := logging.GetLogger()

	mux := http.NewServeMux()
	a.RegisterHandlers(mux)

	go a.broadcastUpdates(a.Subscribe())

	logger.Info("starting API server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

// viewOrUnavailable returns the current view, or writes a 503 when none has
// been loaded yet
func (a *API) viewOrUnavailable(w http.ResponseWriter, r *http.Request) *market.View {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil
	}
	view := a.getView()
	if view == nil {
		http.Error(w, "Snapshot not loaded", http.StatusServiceUnavailable)
		return nil
	}
	return view
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// marketFilter parses the optional market query parameter. Zero means no
// filter.
func marketFilter(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	param := r.URL.Query().Get("market")
	if param == "" {
		return 0, true
	}
	appId, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		http.Error(w, "Invalid market ID", http.StatusBadRequest)
		return 0, false
	}
	return appId, true
}

// HandleGetView returns the full evaluated view
func (a *API) HandleGetView(w http.ResponseWriter, r *http.Request) {
	view := a.viewOrUnavailable(w, r)
	if view == nil {
		return
	}
	writeJSON(w, view)
}

// HandleListMarkets returns all market summaries
func (a *API) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	view := a.viewOrUnavailable(w, r)
	if view == nil {
		return
	}
	writeJSON(w, map[string]any{
		"markets": view.Markets,
		"count":   len(view.Markets),
	})
}

// HandleGetMarket returns a market summary by app ID
func (a *API) HandleGetMarket(w http.ResponseWriter, r *http.Request) {
	view := a.viewOrUnavailable(w, r)
	if view == nil {
		return
	}
	param := strings.TrimPrefix(r.URL.Path, "/api/v1/markets/")
	if param == "" {
		http.Error(w, "Market ID required", http.StatusBadRequest)
		return
	}
	appId, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		http.Error(w, "Invalid market ID", http.StatusBadRequest)
		return
	}
	for _, summary := range view.Markets {
		if summary.AppId == appId {
			writeJSON(w, summary)
			return
		}
	}
	http.Error(w, "Market not found", http.StatusNotFound)
}

// HandleListPositions returns user positions, optionally filtered by market
// and address
func (a *API) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	view := a.viewOrUnavailable(w, r)
	if view == nil {
		return
	}
	appId, ok := marketFilter(w, r)
	if !ok {
		return
	}
	address := r.URL.Query().Get("address")
	positions := make([]*market.UserPosition, 0, len(view.Positions))
	for _, pos := range view.Positions {
		if appId != 0 && pos.MarketAppId != appId {
			continue
		}
		if address != "" && pos.Address != address {
			continue
		}
		positions = append(positions, pos)
	}
	writeJSON(w, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

// HandleListListings returns debt marketplace listings, optionally filtered
// by market, kind and collateral asset
func (a *API) HandleListListings(w http.ResponseWriter, r *http.Request) {
	view := a.viewOrUnavailable(w, r)
	if view == nil {
		return
	}
	appId, ok := marketFilter(w, r)
	if !ok {
		return
	}
	kind := r.URL.Query().Get("kind")
	var collateral *common.AssetId
	if param := r.URL.Query().Get("collateral"); param != "" {
		asset, err := common.ParseAssetId(param)
		if err != nil {
			http.Error(w, "Invalid collateral asset ID", http.StatusBadRequest)
			return
		}
		collateral = &asset
	}
	listings := make([]*market.Listing, 0, len(view.Listings))
	for _, listing := range view.Listings {
		if appId != 0 && listing.MarketAppId != appId {
			continue
		}
		if kind != "" && listing.Kind.String() != kind {
			continue
		}
		if collateral != nil && !listing.Collateral.IsAsset(*collateral) {
			continue
		}
		listings = append(listings, listing)
	}
	writeJSON(w, map[string]any{
		"listings": listings,
		"count":    len(listings),
	})
}

// HandleListPrices returns the stored oracle observations, including ones
// currently outside their validity window
func (a *API) HandleListPrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.prices == nil {
		http.Error(w, "Price store not configured", http.StatusServiceUnavailable)
		return
	}
	observations, err := a.prices.Observations()
	if err != nil {
		logging.GetLogger().Error("failed to list oracle observations", "error", err)
		http.Error(w, "Failed to load prices", http.StatusInternalServerError)
		return
	}
	if observations == nil {
		observations = []pricefeed.Observation{}
	}
	writeJSON(w, map[string]any{
		"prices": observations,
		"count":  len(observations),
	})
}

type listingUpdate struct {
	Listings  []*market.Listing  `json:"listings"`
	Errors    []market.ViewError `json:"errors,omitempty"`
	UpdatedAt string             `json:"updatedAt"`
}

func newListingUpdate(view *market.View) *listingUpdate {
	return &listingUpdate{
		Listings:  view.Listings,
		Errors:    view.Errors,
		UpdatedAt: view.UpdatedAt.Format(time.RFC3339),
	}
}

// HandleListingStream handles WebSocket connections for listing updates.
// The current listings are sent on connect.
func (a *API) HandleListingStream(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLogger()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	a.wsMu.Lock()
	a.wsConns[conn] = true
	a.wsMu.Unlock()

	logger.Debug("WebSocket client connected", "remote", conn.RemoteAddr())

	defer func() {
		a.wsMu.Lock()
		delete(a.wsConns, conn)
		a.wsMu.Unlock()
		_ = conn.Close()
		logger.Debug(
			"WebSocket client disconnected",
			"remote",
			conn.RemoteAddr(),
		)
	}()

	if view := a.getView(); view != nil {
		a.writeMu.Lock()
		err := conn.WriteJSON(newListingUpdate(view))
		a.writeMu.Unlock()
		if err != nil {
			return
		}
	}

	// Read messages (for ping/pong and close handling)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcastUpdates sends every new view to the WebSocket clients
func (a *API) broadcastUpdates(updates <-chan *market.View) {
	logger := logging.GetLogger()

	for view := range updates {
		update := newListingUpdate(view)
		var failedConns []*websocket.Conn

		a.wsMu.RLock()
		a.writeMu.Lock()
		for conn := range a.wsConns {
			if err := conn.WriteJSON(update); err != nil {
				logger.Debug(
					"failed to send WebSocket update",
					"error", err,
					"remote", conn.RemoteAddr(),
				)
				failedConns = append(failedConns, conn)
			}
		}
		a.writeMu.Unlock()
		a.wsMu.RUnlock()

		// Remove failed connections outside of the read lock
		if len(failedConns) > 0 {
			a.wsMu.Lock()
			for _, conn := range failedConns {
				delete(a.wsConns, conn)
				_ = conn.Close()
			}
			a.wsMu.Unlock()
		}
	}
}

// WebSocketClientCount returns the number of connected WebSocket clients
func (a *API) WebSocketClientCount() int {
	a.wsMu.RLock()
	defer a.wsMu.RUnlock()
	return len(a.wsConns)
}
