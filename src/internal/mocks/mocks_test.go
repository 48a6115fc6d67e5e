package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/maksimkurb/keen-dns/src/internal/querylog"
)

// TestMockRunner_DefaultBehavior tests default mock behavior
func TestMockRunner_DefaultBehavior(t *testing.T) {
	mock := NewMockRunner()

	if err := mock.Run(context.Background(), "iptables -L"); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	commands := mock.Commands()
	if len(commands) != 1 || commands[0] != "iptables -L" {
		t.Errorf("Unexpected commands: %v", commands)
	}

	mock.Reset()
	if len(mock.Commands()) != 0 {
		t.Error("Expected no commands after reset")
	}
}

// TestMockRunner_CustomBehavior tests custom function behavior
func TestMockRunner_CustomBehavior(t *testing.T) {
	expectedErr := errors.New("test error")
	mock := &MockRunner{
		RunFunc: func(ctx context.Context, command string) error {
			return expectedErr
		},
	}

	if err := mock.Run(context.Background(), "iptables -L"); !errors.Is(err, expectedErr) {
		t.Errorf("Expected %v, got: %v", expectedErr, err)
	}
	if len(mock.Commands()) != 1 {
		t.Error("Failed commands must be recorded too")
	}
}

func TestMockQueryStore(t *testing.T) {
	mock := NewMockQueryStore()
	now := time.Now()
	older := &models.QueryRecord{ID: models.NewRecordID(), QuestionName: "older.example.", QuestionTime: now.Add(-time.Minute)}
	newer := &models.QueryRecord{ID: models.NewRecordID(), QuestionName: "newer.example.", QuestionTime: now}

	err := mock.RunInTransaction(func(tx querylog.StoreTx) error {
		if err := tx.Insert(older); err != nil {
			return err
		}
		if err := tx.Insert(newer); err != nil {
			return err
		}
		return tx.Update(newer)
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if mock.TransactionCalls != 1 || mock.InsertCalls != 2 || mock.UpdateCalls != 1 {
		t.Errorf("Unexpected call counts: %d/%d/%d", mock.TransactionCalls, mock.InsertCalls, mock.UpdateCalls)
	}

	recent, err := mock.Recent(1)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(recent) != 1 || recent[0].QuestionName != "newer.example." {
		t.Errorf("Unexpected recent records: %+v", recent)
	}

	if count, _ := mock.Count(); count != 2 {
		t.Errorf("Expected 2 records, got %d", count)
	}

	mock.CountErr = errors.New("count failed")
	if _, err := mock.Count(); err == nil {
		t.Error("Expected CountErr to be returned")
	}
}
