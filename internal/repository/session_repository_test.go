package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dhruvindave007/janmitra/internal/model"
)

// expectSessionCreate pins the one-device-per-identity contract: inside a
// single transaction, every prior active session is deactivated with reason
// NEW_DEVICE before the new row is inserted.
func expectSessionCreate(mock sqlmock.Sqlmock, userID uint64, displaced int64, newID int64) {
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE device_sessions SET is_active=0").
		WithArgs(string(model.InvalidationNewDevice), userID).
		WillReturnResult(sqlmock.NewResult(0, displaced))
	mock.ExpectExec("INSERT INTO device_sessions").
		WillReturnResult(sqlmock.NewResult(newID, 1))
	mock.ExpectCommit()
}

func TestSessionCreateDisplacesPriorSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewSessionRepo(db)
	info := model.DeviceInfo{DeviceName: "pixel", OSName: "android", OSVersion: "14", AppVersion: "1.0"}

	// First device: nothing to displace.
	expectSessionCreate(mock, 7, 0, 41)
	// Second device: exactly the first session gets displaced, so at most
	// one row per user is ever active.
	expectSessionCreate(mock, 7, 1, 42)

	if id, err := repo.Create(context.Background(), 7, "hash-a", info); err != nil || id != 41 {
		t.Fatalf("first create: id=%d err=%v", id, err)
	}
	if id, err := repo.Create(context.Background(), 7, "hash-b", info); err != nil || id != 42 {
		t.Fatalf("second create: id=%d err=%v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionCreateRollsBackWhenDisplacementFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	repo := NewSessionRepo(db)

	// If the deactivation fails the insert must never run; otherwise two
	// active sessions could coexist.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE device_sessions SET is_active=0").
		WithArgs(string(model.InvalidationNewDevice), uint64(7)).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if _, err := repo.Create(context.Background(), 7, "hash-a", model.DeviceInfo{}); err == nil {
		t.Fatal("expected create to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
