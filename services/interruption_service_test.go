package services

import (
	"testing"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptionStartEnd(t *testing.T) {
	db := openTestDB(t)
	svc := NewInterruptionService(db, events.NopPublisher{})

	started, err := svc.Start()
	require.NoError(t, err)
	assert.Nil(t, started.EndTime)

	active, err := svc.Active()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, started.ID, active.ID)

	ended, err := svc.End()
	require.NoError(t, err)
	require.NotNil(t, ended.EndTime)

	active, err = svc.Active()
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestInterruptionSecondStartRejected(t *testing.T) {
	db := openTestDB(t)
	svc := NewInterruptionService(db, events.NopPublisher{})

	_, err := svc.Start()
	require.NoError(t, err)

	_, err = svc.Start()
	assert.ErrorIs(t, err, ErrInterruptionOpen)
}

func TestInterruptionEndWithoutOpen(t *testing.T) {
	db := openTestDB(t)
	svc := NewInterruptionService(db, events.NopPublisher{})

	_, err := svc.End()
	assert.ErrorIs(t, err, ErrNoOpenInterruption)
}

func TestInterruptionEndAccruesMinutesOnOverlappingSubscriptions(t *testing.T) {
	db := openTestDB(t)
	svc := NewInterruptionService(db, events.NopPublisher{})

	now := time.Now().UTC()
	covered := models.Subscription{
		UserID:    "11111111-1111-1111-1111-111111111111",
		Hashrate:  100,
		StartDate: now.Add(-48 * time.Hour),
		EndDate:   now.Add(48 * time.Hour),
		IsValid:   true,
	}
	expiredLongAgo := models.Subscription{
		UserID:    "22222222-2222-2222-2222-222222222222",
		Hashrate:  50,
		StartDate: now.Add(-96 * time.Hour),
		EndDate:   now.Add(-72 * time.Hour),
		IsValid:   false,
	}
	require.NoError(t, db.Create(&covered).Error)
	require.NoError(t, db.Create(&expiredLongAgo).Error)

	_, err := svc.Start()
	require.NoError(t, err)
	_, err = svc.End()
	require.NoError(t, err)

	var got models.Subscription
	require.NoError(t, db.First(&got, covered.ID).Error)
	// The window opened and closed within the test, so zero whole minutes.
	assert.GreaterOrEqual(t, got.InterruptionMinutes, int64(0))

	var untouched models.Subscription
	require.NoError(t, db.First(&untouched, expiredLongAgo.ID).Error)
	assert.Equal(t, int64(0), untouched.InterruptionMinutes)
}

func TestOverlapMinutes(t *testing.T) {
	db := openTestDB(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-10 * 24 * time.Hour)
	end := now

	closedEnd := start.Add(30 * time.Hour)
	closed := models.Interruption{
		StartTime: start.Add(24 * time.Hour),
		EndTime:   &closedEnd,
	}
	require.NoError(t, db.Create(&closed).Error)

	minutes, err := overlapMinutes(db, start, end, now)
	require.NoError(t, err)
	assert.Equal(t, int64(6*60), minutes)

	// An interruption that started before the window is clipped to it.
	beforeEnd := start.Add(2 * time.Hour)
	before := models.Interruption{
		StartTime: start.Add(-3 * time.Hour),
		EndTime:   &beforeEnd,
	}
	require.NoError(t, db.Create(&before).Error)

	minutes, err = overlapMinutes(db, start, end, now)
	require.NoError(t, err)
	assert.Equal(t, int64(6*60+2*60), minutes)
}

func TestOverlapMinutesOpenInterruptionClippedToNow(t *testing.T) {
	db := openTestDB(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	open := models.Interruption{StartTime: now.Add(-90 * time.Minute)}
	require.NoError(t, db.Create(&open).Error)

	minutes, err := overlapMinutes(db, now.Add(-24*time.Hour), now.Add(24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(90), minutes)
}
