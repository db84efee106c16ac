package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/driftboard/driftboard/internal/asset"
	"github.com/driftboard/driftboard/internal/auth"
	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/collab"
	"github.com/driftboard/driftboard/internal/config"
	mw "github.com/driftboard/driftboard/internal/middleware"
	"github.com/driftboard/driftboard/internal/project"
	"github.com/driftboard/driftboard/internal/store"
	"github.com/driftboard/driftboard/internal/typeid"
)

// The playground board lets visitors try the canvas without an account.
// It lives only in memory and is rebuilt from the sample on every restart.
const playgroundBoardID = "board_playground"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	authService := auth.NewService(st, cfg.JWTSecret)
	authHandler := auth.NewHandler(authService)

	projectService := project.NewService(st)
	projectHandler := project.NewHandler(projectService)

	// Board loader for the collaboration hub
	boardLoader := func(ctx context.Context, boardID string) (*board.Board, error) {
		if boardID == playgroundBoardID {
			return board.NewSampleBoard(boardID), nil
		}
		snap, err := st.LatestSnapshot(ctx, boardID)
		if err != nil {
			return nil, err
		}
		var b board.Board
		if err := json.Unmarshal(snap.Data, &b); err != nil {
			return nil, err
		}
		return &b, nil
	}

	// Board saver for the collaboration hub
	boardSaver := func(ctx context.Context, boardID string, b *board.Board, serverSeq int64) error {
		if boardID == playgroundBoardID {
			return nil
		}
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal board: %w", err)
		}
		return st.SaveSnapshot(ctx, store.Snapshot{
			ID:        typeid.NewSnapshotID(),
			BoardID:   boardID,
			ServerSeq: serverSeq,
			Data:      data,
		})
	}

	hub := collab.NewHub(boardLoader, boardSaver)
	go hub.Run(ctx)

	assetHandler := asset.NewHandler(cfg.AssetDir, st)

	r := mux.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.CORS)

	// Auth routes (public)
	r.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Asset endpoints (public — used by playground and authenticated users)
	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/auth/me", authHandler.Me).Methods("GET")

	api.HandleFunc("/projects", projectHandler.List).Methods("GET")
	api.HandleFunc("/projects", projectHandler.Create).Methods("POST")
	api.HandleFunc("/projects/{projectId}", projectHandler.Get).Methods("GET")
	api.HandleFunc("/projects/{projectId}", projectHandler.Delete).Methods("DELETE")
	api.HandleFunc("/projects/{projectId}/invite", projectHandler.Invite).Methods("POST")
	api.HandleFunc("/projects/{projectId}/members", projectHandler.ListMembers).Methods("GET")
	api.HandleFunc("/projects/{projectId}/members/{userId}", projectHandler.RemoveMember).Methods("DELETE")

	api.HandleFunc("/projects/{projectId}/boards", projectHandler.ListBoards).Methods("GET")
	api.HandleFunc("/projects/{projectId}/boards", projectHandler.CreateBoard).Methods("POST")
	api.HandleFunc("/projects/{projectId}/boards/{boardId}", projectHandler.DeleteBoard).Methods("DELETE")
	api.HandleFunc("/projects/{projectId}/boards/{boardId}/snapshot", projectHandler.GetBoardSnapshot).Methods("GET")

	api.HandleFunc("/projects/{projectId}/assets", assetHandler.ListForProject).Methods("GET")
	api.HandleFunc("/projects/{projectId}/assets", assetHandler.UploadToProject).Methods("POST")

	api.HandleFunc("/boards/{boardId}/client-state", projectHandler.GetClientState).Methods("GET")
	api.HandleFunc("/boards/{boardId}/client-state", projectHandler.SaveClientState).Methods("PUT")

	// WebSocket endpoint
	r.HandleFunc("/ws/board/{boardId}", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, hub, authService, projectService)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Stop hub first to save all open boards
		slog.Info("saving all boards...")
		hub.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, hub *collab.Hub, authSvc *auth.Service, projectSvc *project.Service) {
	vars := mux.Vars(r)
	boardID := vars["boardId"]

	var userID string
	var displayName string

	// Playground board allows anonymous access
	if boardID == playgroundBoardID {
		// Anonymous user for playground
		userID = "anon-" + uuid.New().String()[:8]
		displayName = "Anonymous"
	} else {
		// Auth via query param for real boards
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		var err error
		userID, err = authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		// Check membership through the board's project
		if _, err := projectSvc.CheckBoardAccess(r.Context(), boardID, userID); err != nil {
			if errors.Is(err, project.ErrNotFound) {
				http.Error(w, "board not found", http.StatusNotFound)
				return
			}
			http.Error(w, "not a project member", http.StatusForbidden)
			return
		}

		// Get user display name
		user, err := authSvc.GetUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "user not found", http.StatusInternalServerError)
			return
		}
		displayName = user.DisplayName
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:5173", "localhost:3000"},
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := collab.NewClient(hub, conn, userID, displayName, boardID, clientID)

	hub.Register(client)

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
