package models

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/utils"
	"gorm.io/gorm"
)

const (
	hierarchyLockName = "hierarchy:org"
	lockWaitSeconds   = 30
)

func periodLockName(periodId string) string {
	return fmt.Sprintf("period:%s", periodId)
}

// GET_LOCK answers 1 when taken, 0 on timeout and NULL on error.
func checkLockResult(lockName string, ok sql.NullInt64) error {
	if !ok.Valid {
		return fmt.Errorf("GET_LOCK(%s) failed", lockName)
	}
	if ok.Int64 != 1 {
		return utils.NewBusyError("%s is busy, try again later", lockName)
	}
	return nil
}

func acquireAdvisoryLock(conn *gorm.DB, lockName string) error {
	var ok sql.NullInt64
	if err := conn.Raw("SELECT GET_LOCK(?, ?)", lockName, lockWaitSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	return checkLockResult(lockName, ok)
}

func releaseAdvisoryLock(conn *gorm.DB, lockName string) {
	var _ok sql.NullInt64
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// lockedTransaction runs fc in a transaction while holding a MySQL advisory lock.
// GET_LOCK is connection-scoped, so lock, transaction and release share one pinned
// connection, and the lock is released only after the commit or rollback.
func lockedTransaction(ctx context.Context, lockName string, fc func(tx *gorm.DB) error) error {
	return config.GetDB().WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquireAdvisoryLock(conn, lockName); err != nil {
			return err
		}
		defer releaseAdvisoryLock(conn, lockName)
		return conn.Transaction(fc)
	})
}

// PeriodTransaction serializes recalculation, import, payout requests and status moves for one period.
func PeriodTransaction(ctx context.Context, periodId string, fc func(tx *gorm.DB) error) error {
	return lockedTransaction(ctx, periodLockName(periodId), fc)
}

// HierarchyTransaction serializes edge mutations with the closure rebuild.
func HierarchyTransaction(ctx context.Context, fc func(tx *gorm.DB) error) error {
	return lockedTransaction(ctx, hierarchyLockName, fc)
}
