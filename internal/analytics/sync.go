package analytics

import (
	"QRLinks-Backend/pkg/useragent"
	"context"
	"time"

	"go.uber.org/zap"
)

// SyncRecorder appends the scan inside the redirect request.
// Failures are logged and swallowed.
type SyncRecorder struct {
	store   ScanAppender
	parser  *useragent.Parser
	log     *zap.Logger
	timeout time.Duration
}

func NewSyncRecorder(store ScanAppender, parser *useragent.Parser, log *zap.Logger, timeout time.Duration) *SyncRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SyncRecorder{store: store, parser: parser, log: log, timeout: timeout}
}

func (r *SyncRecorder) Record(ctx context.Context, ev ScanEvent) {
	// клиент может отключиться сразу после 302, запись все равно доводим до конца
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.AppendScan(ctx, ev.Slug, BuildScan(r.parser, ev)); err != nil {
		r.log.Warn("failed to record scan", zap.String("slug", ev.Slug), zap.Error(err))
	}
}
