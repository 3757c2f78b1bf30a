package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lunarite/guildbridge/pkg/bridge"
	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/config"
	"github.com/lunarite/guildbridge/pkg/logger"
	"github.com/lunarite/guildbridge/pkg/minecraft"
	"github.com/lunarite/guildbridge/pkg/storage"
)

// Server exposes a read-only HTTP status API and a WebSocket event stream
// for the running bridge.
type Server struct {
	config config.DashboardConfig
	conn   *minecraft.Conn
	bridge *bridge.Bridge
	store  storage.Storage

	hub        *Hub
	httpServer *http.Server
	startTime  time.Time
}

func NewServer(cfg config.DashboardConfig, conn *minecraft.Conn, br *bridge.Bridge, store storage.Storage, msgBus *bus.Bus) *Server {
	return &Server{
		config:    cfg,
		conn:      conn,
		bridge:    br,
		store:     store,
		hub:       NewHub(msgBus),
		startTime: time.Now(),
	}
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("/api/v1/players", s.authMiddleware(s.handlePlayers))
	mux.HandleFunc("/api/v1/guild", s.authMiddleware(s.handleGuild))
	mux.HandleFunc("/ws", s.authMiddleware(s.hub.handleWebSocket))

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dashboard listen on %s: %w", addr, err)
	}

	logger.InfoCF("dashboard", "Dashboard started", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("dashboard", "HTTP server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	playerCount, err := s.store.Players().Count(r.Context())
	if err != nil {
		playerCount = -1
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"connection": s.conn.State().String(),
		"bot_ign":    s.conn.Username(),
		"guild":      s.bridge.LinkedGuild(),
		"players":    playerCount,
	})
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	players, err := s.store.Players().List(r.Context())
	if err != nil {
		http.Error(w, "failed to list players", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"players": players,
	})
}

func (s *Server) handleGuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := s.bridge.LinkedGuild()
	if name == "" {
		http.Error(w, "not linked", http.StatusNotFound)
		return
	}
	guild, err := s.store.Guilds().Get(r.Context(), name)
	if err != nil || guild == nil {
		http.Error(w, "guild not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, guild)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" || token != s.config.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// extractToken reads the bearer token from the Authorization header, falling
// back to a ?token= query parameter for WebSocket clients that cannot set
// headers.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
