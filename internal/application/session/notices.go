package session

import (
	"fmt"
	"time"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/logger"
)

// Notice is a user-facing message about a background failure.
type Notice struct {
	Operation string
	Message   string
	At        time.Time
}

// WatchSyncFailures subscribes to progress.sync_failed and keeps the latest
// notice per account. Events may come from another instance, so only the
// payload is read.
func (o *Orchestrator) WatchSyncFailures(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventProgressSyncFailed, func(e shared.Event) error {
		payload := e.Payload()
		account, _ := payload["account_id"].(string)
		if account == "" {
			account = e.AggregateID()
		}
		if account == "" {
			return fmt.Errorf("sync failure event %s without account", e.EventID())
		}
		op, _ := payload["operation"].(string)

		o.noticesMu.Lock()
		o.notices[shared.AccountID(account)] = Notice{
			Operation: op,
			Message:   "Your latest progress could not be saved. It is kept on this device and will be saved with your next update.",
			At:        e.OccurredAt(),
		}
		o.noticesMu.Unlock()

		o.log.Warn("progress sync failure noted", logger.AccountID(account), logger.Operation(op))
		return nil
	})
}

// Notices returns the pending notice for the account.
func (o *Orchestrator) Notices(account shared.AccountID) (Notice, bool) {
	o.noticesMu.RLock()
	defer o.noticesMu.RUnlock()
	n, ok := o.notices[account]
	return n, ok
}

// DismissNotice clears the account's notice.
func (o *Orchestrator) DismissNotice(account shared.AccountID) {
	o.noticesMu.Lock()
	defer o.noticesMu.Unlock()
	delete(o.notices, account)
}
