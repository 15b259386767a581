// Package handler - HTTP-поверхность сервиса: создание партий, живой
// SSE-поток событий и чтение истории завершённых партий.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"imposter-server/internal/game"
	"imposter-server/internal/history"
	"imposter-server/internal/messaging"
)

// Handler связывает HTTP-запросы с движком партий и хранилищем.
type Handler struct {
	store    history.Store
	caller   game.ModelCaller
	notifier messaging.Notifier
	logger   *zap.Logger
	sessions *SessionRegistry

	defaultModel     string
	defaultMaxTokens int
	keepalive        time.Duration

	// baseCtx обрывает идущие партии при остановке сервера.
	baseCtx context.Context
}

func NewHandler(
	baseCtx context.Context,
	store history.Store,
	caller game.ModelCaller,
	notifier messaging.Notifier,
	logger *zap.Logger,
	defaultModel string,
	defaultMaxTokens int,
	keepalive time.Duration,
) *Handler {
	if notifier == nil {
		notifier = messaging.NopNotifier{}
	}
	return &Handler{
		store:            store,
		caller:           caller,
		notifier:         notifier,
		logger:           logger.Named("Handler"),
		sessions:         NewSessionRegistry(),
		defaultModel:     defaultModel,
		defaultMaxTokens: defaultMaxTokens,
		keepalive:        keepalive,
		baseCtx:          baseCtx,
	}
}

// RegisterRoutes вешает маршруты API на роутер.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/game/create", h.createGame)
		api.GET("/game/:id/stream", h.streamGame)
		api.GET("/game/:id/history", h.gameHistory)
		api.GET("/games/list", h.listGames)
	}
}

// createGame валидирует запрос, создаёт запись партии и запускает движок
// в фоне. Ответ возвращается сразу, наблюдение - через SSE.
func (h *Handler) createGame(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	gameID := uuid.NewString()
	cfg := req.toConfig(gameID, h.defaultModel, h.defaultMaxTokens)

	session := NewSession(gameID)
	recorder := history.NewRecorder(h.store, gameID, h.logger)
	engine, err := game.NewEngine(cfg, h.caller, game.MultiSink{recorder, session}, h.logger, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	rec := &history.GameRecord{
		ID:       gameID,
		Status:   history.StatusRunning,
		Word:     cfg.Word,
		Category: cfg.Category,
		Config:   cfg,
	}
	if err := h.store.CreateGame(c.Request.Context(), rec); err != nil {
		h.logger.Error("не удалось создать запись партии", zap.String("gameID", gameID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create game"})
		return
	}

	h.sessions.Add(session)
	go h.runGame(engine, session, gameID)

	h.logger.Info("партия создана",
		zap.String("gameID", gameID),
		zap.String("category", cfg.Category),
		zap.Int("players", cfg.NumPlayers))

	c.JSON(http.StatusCreated, CreateGameResponse{
		GameID:    gameID,
		StreamURL: "/api/game/" + gameID + "/stream",
		Status:    string(history.StatusRunning),
	})
}

// runGame проводит партию в фоне и фиксирует исход в хранилище.
func (h *Handler) runGame(engine *game.Engine, session *Session, gameID string) {
	defer func() {
		session.Close()
		h.sessions.Remove(gameID)
	}()

	result, runErr := engine.Run(h.baseCtx)

	status := history.StatusCompleted
	if runErr != nil {
		status = history.StatusFailed
		h.logger.Error("партия завершилась с ошибкой",
			zap.String("gameID", gameID), zap.Error(runErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.store.UpdateStatus(ctx, gameID, status, result); err != nil {
		h.logger.Error("не удалось сохранить исход партии",
			zap.String("gameID", gameID), zap.Error(err))
	}
	if result != nil {
		if err := h.notifier.NotifyGameCompleted(ctx, result); err != nil {
			h.logger.Warn("не удалось отправить уведомление о завершении",
				zap.String("gameID", gameID), zap.Error(err))
		}
	}
}

// streamGame отдаёт события партии как SSE: сперва накопленный лог,
// затем живой поток с keepalive между событиями.
func (h *Handler) streamGame(c *gin.Context) {
	gameID := c.Param("id")

	session, ok := h.sessions.Get(gameID)
	if !ok {
		// Партия уже завершена - отдаём сохранённую хронологию одним потоком.
		events, err := h.store.Events(c.Request.Context(), gameID)
		if err != nil {
			h.notFoundOrError(c, gameID, err)
			return
		}
		h.setSSEHeaders(c)
		for _, ev := range events {
			c.SSEvent(string(ev.Type), ev)
		}
		c.Writer.Flush()
		return
	}

	replay, live, cancel := session.Subscribe()
	defer cancel()

	h.setSSEHeaders(c)
	for _, ev := range replay {
		c.SSEvent(string(ev.Type), ev)
	}
	c.Writer.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case ev, open := <-live:
			if !open {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case <-keepalive.C:
			c.SSEvent("keepalive", gin.H{"ts": time.Now().UTC()})
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

// gameHistory возвращает запись партии и полный событийный лог.
func (h *Handler) gameHistory(c *gin.Context) {
	gameID := c.Param("id")

	rec, err := h.store.GetGame(c.Request.Context(), gameID)
	if err != nil {
		h.notFoundOrError(c, gameID, err)
		return
	}
	events, err := h.store.Events(c.Request.Context(), gameID)
	if err != nil {
		h.notFoundOrError(c, gameID, err)
		return
	}
	c.JSON(http.StatusOK, GameHistoryResponse{Game: rec, Events: events})
}

func (h *Handler) listGames(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	games, err := h.store.ListGames(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("не удалось получить список партий", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list games"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (h *Handler) setSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
}

func (h *Handler) notFoundOrError(c *gin.Context, gameID string, err error) {
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "game not found"})
		return
	}
	h.logger.Error("ошибка чтения партии", zap.String("gameID", gameID), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
