package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"imposter-server/internal/game"
)

// Compile-time check
var _ game.Sink = (*Recorder)(nil)

// Recorder - приёмник событий движка, пишущий их в хранилище с монотонным
// seq. Движок вызывает Emit синхронно из одной горутины, поэтому счётчик
// не требует блокировок. Ошибка записи одного события не останавливает
// партию: хронология важна, но не ценой срыва игры.
type Recorder struct {
	store  Store
	gameID string
	logger *zap.Logger
	seq    int
}

func NewRecorder(store Store, gameID string, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, gameID: gameID, logger: logger.Named("Recorder")}
}

func (r *Recorder) Emit(ev game.Event) {
	r.seq++
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.AppendEvent(ctx, r.gameID, r.seq, ev); err != nil {
		r.logger.Error("не удалось записать событие партии",
			zap.String("gameID", r.gameID),
			zap.Int("seq", r.seq),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}
