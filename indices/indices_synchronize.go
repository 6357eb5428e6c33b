package indices

import (
	"context"
	"fmt"
	"sync"

	"roster/bizerror"
	"roster/domain"
	"roster/persistence"
	"roster/session"

	"github.com/sirupsen/logrus"
)

var (
	lock    sync.Mutex
	running bool

	SyncBatchSize = 500

	// SyncMaxLoadFailures bounds consecutive page-load failures before a run
	// gives up instead of spinning on an unreadable store.
	SyncMaxLoadFailures = 3

	IndicesFullSyncFunc    = IndicesFullSync
	ScheduleNewSyncRunFunc = ScheduleNewSyncRun
	LoadInvitesFunc        = loadInvitesPage
)

// ScheduleNewSyncRun starts a background full re-index unless one is already
// running. Only administrators may trigger it.
func ScheduleNewSyncRun(s *session.Session) (bool, error) {
	if !s.Perms.HasAdminRole() {
		return false, bizerror.ErrForbidden
	}

	lock.Lock()
	if running {
		lock.Unlock()
		return false, nil
	}
	running = true
	lock.Unlock()

	waitRunning := sync.WaitGroup{}
	waitRunning.Add(1)
	go func() {
		waitRunning.Done()
		defer func() {
			lock.Lock()
			running = false
			lock.Unlock()
		}()
		IndicesFullSyncFunc()
	}()
	waitRunning.Wait()
	return true, nil
}

// IndicesFullSync pushes every invite row into the search index, page by
// page. Pages that fail are logged and skipped so one bad row cannot stall
// the whole run.
func IndicesFullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()

	ctx := context.Background()
	page := 1
	loadFailures := 0
	for {
		invites, err := LoadInvitesFunc(ctx, page, SyncBatchSize)
		if err != nil {
			logrus.Warnf("indices full sync: error on retrieve invites(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
			loadFailures++
			if loadFailures >= SyncMaxLoadFailures {
				return fmt.Errorf("indices full sync aborted after %d consecutive load failures: %v", loadFailures, err)
			}
			page++
			continue
		}
		loadFailures = 0

		if len(invites) == 0 {
			logrus.Infof("indices full sync: there are no more invites to index")
			return nil // loop exit
		}

		if err := IndexInvitesFunc(ctx, invites); err != nil {
			logrus.Warnf("indices full sync: error on index invites(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
		}
		page++
	}
}

func loadInvitesPage(ctx context.Context, page, pageSize int) ([]domain.ProjectMemberInvite, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	invites := []domain.ProjectMemberInvite{}
	if err := db.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&invites).Error; err != nil {
		return nil, err
	}
	return invites, nil
}
