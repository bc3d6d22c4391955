package db

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// mockMongoDuplicateKeyError creates an error that IsMongoDuplicateKeyError will recognize.
func mockMongoDuplicateKeyError(key string) error {
	mongoErr := mongo.WriteError{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: test.consultations index: _id_ dup key: { : \"%s\" }", key),
	}
	return mongo.WriteException{WriteErrors: []mongo.WriteError{mongoErr}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	operation := func() error {
		opCalled++
		return nil
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_FailureNonDuplicateKey(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	operation := func() error {
		opCalled++
		return expectedErr
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError)
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	collidingID := primitive.NewObjectID()

	operation := func() error {
		opCalled++
		return mockMongoDuplicateKeyError(collidingID.Hex())
	}

	maxRetries := 3
	err := WithRetries(operation, maxRetries, IsMongoDuplicateKeyError)

	if err == nil {
		t.Fatal("Expected a duplicate key error, got nil")
	}
	if !IsMongoDuplicateKeyError(err) {
		t.Errorf("Expected a Mongo duplicate key error, got %T: %v", err, err)
	}

	expectedOpCalls := maxRetries + 1
	if opCalled != expectedOpCalls {
		t.Errorf("Expected operation to be called %d times, got %d", expectedOpCalls, opCalled)
	}
}

func TestWithRetries_OnRetryHookRunsBeforeEachRetry(t *testing.T) {
	var opCalled, hookCalled int
	operation := func() error {
		opCalled++
		if opCalled == 1 {
			return mockMongoDuplicateKeyError(primitive.NewObjectID().Hex())
		}
		return nil
	}
	hook := func() {
		hookCalled++
		if hookCalled > opCalled {
			t.Error("Hook ran before the failed attempt it should follow")
		}
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError, hook)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if opCalled != 2 {
		t.Errorf("Expected operation to be called 2 times, got %d", opCalled)
	}
	if hookCalled != 1 {
		t.Errorf("Expected hook to be called once, got %d", hookCalled)
	}
}

func TestWithRetries_CollisionResolves(t *testing.T) {
	// First two attempts collide on the same id, the third succeeds with a
	// fresh one — the pattern a retried InsertOne produces in practice.
	var opCalled int
	operation := func() error {
		opCalled++
		if opCalled <= 2 {
			return mockMongoDuplicateKeyError(primitive.NewObjectID().Hex())
		}
		return nil
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError)
	if err != nil {
		t.Fatalf("Expected no error as collision should resolve, got: %v", err)
	}
	if opCalled != 3 {
		t.Errorf("Expected operation to be called 3 times, got %d", opCalled)
	}
}
