package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imposter-server/internal/game"
	"imposter-server/internal/handler"
	"imposter-server/internal/history"
	"imposter-server/internal/schemas"
)

// scriptedCaller мгновенно доигрывает любую партию: уникальные подсказки,
// все голоса против Player_1.
type scriptedCaller struct{ n int }

func (s *scriptedCaller) Clue(_ context.Context, _ schemas.Request) (schemas.ClueResponse, error) {
	s.n++
	return schemas.ClueResponse{Clue: fmt.Sprintf("hint%d", s.n), Confidence: 50}, nil
}

func (s *scriptedCaller) Vote(_ context.Context, req schemas.Request) (schemas.SingleVoteResponse, error) {
	target := "Player_1"
	if strings.Contains(req.Messages[0].Content, "You are Player_1 ") {
		target = "Player_2"
	}
	return schemas.SingleVoteResponse{Target: target, Reasoning: "sus", Confidence: 60}, nil
}

func (s *scriptedCaller) Remark(_ context.Context, _ schemas.Request) (schemas.DiscussionResponse, error) {
	return schemas.DiscussionResponse{Statement: "hm", Confidence: 40}, nil
}

func newTestRouter(t *testing.T, store history.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewHandler(
		context.Background(),
		store,
		&scriptedCaller{},
		nil,
		zap.NewNop(),
		"test-model",
		500,
		15*time.Second,
	)
	h.RegisterRoutes(r)
	return r
}

func createGameBody() string {
	return `{
		"word": "beach",
		"category": "nature",
		"num_players": 4,
		"num_imposters": 1,
		"clue_rounds": 1,
		"voting_rounds": 1,
		"tie_policy": "first"
	}`
}

func TestCreateGameAndHistory(t *testing.T) {
	store := history.NewMemoryStore()
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/game/create", strings.NewReader(createGameBody()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		GameID    string `json:"game_id"`
		StreamURL string `json:"stream_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.GameID)
	assert.Contains(t, created.StreamURL, created.GameID)

	// Партия играется в фоне на заглушке - дожидаемся завершения.
	require.Eventually(t, func() bool {
		rec, err := store.GetGame(context.Background(), created.GameID)
		return err == nil && rec.Status != history.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/game/"+created.GameID+"/history", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Game struct {
			Status string `json:"status"`
		} `json:"game"`
		Events []game.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(history.StatusCompleted), resp.Game.Status)
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, game.EventGameStart, resp.Events[0].Type)
	assert.Equal(t, game.EventGameComplete, resp.Events[len(resp.Events)-1].Type)
}

func TestCreateGameRejectsBadConfig(t *testing.T) {
	router := newTestRouter(t, history.NewMemoryStore())

	body := `{"word":"beach","category":"nature","num_players":3,"num_imposters":2,"clue_rounds":1}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/game/create", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGameHistoryNotFound(t *testing.T) {
	router := newTestRouter(t, history.NewMemoryStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/game/nope/history", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListGames(t *testing.T) {
	store := history.NewMemoryStore()
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/game/create", strings.NewReader(createGameBody()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/games/list", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Games []struct {
			ID string `json:"id"`
		} `json:"games"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Games, 1)
}

// TestStreamCompletedGame: для завершённой партии поток отдаёт сохранённую
// хронологию и закрывается.
func TestStreamCompletedGame(t *testing.T) {
	store := history.NewMemoryStore()
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/game/create", strings.NewReader(createGameBody()))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		GameID string `json:"game_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	require.Eventually(t, func() bool {
		rec, err := store.GetGame(context.Background(), created.GameID)
		return err == nil && rec.Status == history.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/game/"+created.GameID+"/stream", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, w.Body.String(), "event:game_complete")
}
