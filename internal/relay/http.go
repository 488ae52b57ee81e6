package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"quillpad/sync/internal/access"
	"quillpad/sync/internal/auth"
	"quillpad/sync/internal/event"
	"quillpad/sync/internal/store"
)

// workspaceDirectory is the slice of the store the relay needs to admit
// connections: it only ever asks whether a workspace exists and is shared.
type workspaceDirectory interface {
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
}

// BannerStore uploads banner images on behalf of clients before they dispatch
// a change-banner command.
type BannerStore interface {
	Upload(ctx context.Context, body io.Reader, size int64, contentType string) (url, storageID string, err error)
}

type Server struct {
	hub        *Hub
	secret     []byte
	workspaces workspaceDirectory
	banners    BannerStore
	corsOrigin string
	upgrader   websocket.Upgrader
}

func NewServer(hub *Hub, secret []byte, workspaces workspaceDirectory, banners BannerStore, corsOrigin string) *Server {
	return &Server{
		hub:        hub,
		secret:     secret,
		workspaces: workspaces,
		banners:    banners,
		corsOrigin: corsOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/ws/{workspaceID}", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/api/banners", s.handleBannerUpload).Methods(http.MethodPost)
	return s.withCORS(r)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().Format(time.RFC3339)})
}

// handleWS admits a connection into the room named by the workspace id. The
// workspace must exist and be shared; private workspaces never have rooms.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credential")
		return
	}

	workspaceID := mux.Vars(r)["workspaceID"]
	ws, err := s.workspaces.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		writeError(w, http.StatusNotFound, "WORKSPACE_NOT_FOUND", "Workspace not found")
		return
	}
	if ws.Visibility != store.VisibilityShared {
		writeError(w, http.StatusForbidden, "WORKSPACE_NOT_SHARED", "Workspace is not shared")
		return
	}
	if !access.CanJoinRoom(ws, claims.UserID) {
		writeError(w, http.StatusForbidden, "NOT_A_MEMBER", "Not a member of this workspace")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: upgrade failed: %v", err)
		return
	}

	member := &connection{
		ws:     conn,
		send:   make(chan []byte, sendBuffer),
		roomID: workspaceID,
		userID: claims.UserID,
	}
	s.hub.join(member)
	log.Printf("relay: user=%s joined room=%s (members=%d)", member.userID, member.roomID, s.hub.RoomSize(workspaceID))

	go member.writePump()
	s.readPump(member)
}

// readPump relays inbound frames to the rest of the room. Frames whose
// envelope names a different room are discarded: a client can only ever emit
// into the room it joined.
func (s *Server) readPump(c *connection) {
	defer func() {
		s.hub.leave(c)
		c.closeSend()
		c.ws.Close()
		log.Printf("relay: user=%s left room=%s", c.userID, c.roomID)
	}()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		roomID, err := event.RoomOf(frame)
		if err != nil {
			log.Printf("relay: dropping malformed frame from user=%s: %v", c.userID, err)
			continue
		}
		if roomID != c.roomID {
			log.Printf("relay: dropping misrouted frame from user=%s (room=%s, frame room=%s)", c.userID, c.roomID, roomID)
			continue
		}
		s.hub.broadcast(c.roomID, c, frame)
	}
}

func (s *Server) authenticate(r *http.Request) (auth.Claims, error) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return auth.Claims{}, errors.New("missing credential")
	}
	return auth.ParseToken(s.secret, token)
}

func (s *Server) handleBannerUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credential")
		return
	}
	if s.banners == nil {
		writeError(w, http.StatusServiceUnavailable, "BANNERS_UNAVAILABLE", "Banner storage not configured")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "INVALID_CONTENT_TYPE", "Banner must be an image")
		return
	}

	url, storageID, err := s.banners.Upload(r.Context(), r.Body, r.ContentLength, contentType)
	if err != nil {
		log.Printf("relay: banner upload failed: %v", err)
		writeError(w, http.StatusInternalServerError, "UPLOAD_FAILED", "Banner upload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "storageId": storageID})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
