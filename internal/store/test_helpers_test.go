package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Azure/azure-cli-sub020/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testIssuedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestOperation creates a test operation with minimal required fields.
func createTestOperation(id, method, handle string, issuedAt time.Time) ir.Operation {
	return ir.Operation{
		ID:         id,
		Method:     method,
		Handle:     ir.MustHandle(handle),
		StatusCode: 202,
		NoWait:     true,
		IssuedAt:   issuedAt,
	}
}

// createTestTransition creates a test transition with minimal required fields.
func createTestTransition(waitID string, seq int, from, to ir.State) ir.Transition {
	return ir.Transition{
		WaitID:    waitID,
		Seq:       seq,
		Handle:    ir.MustHandle("/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/vm1"),
		Condition: ir.Created(),
		From:      from,
		To:        to,
		Poll:      seq,
		Elapsed:   time.Duration(seq) * 30 * time.Second,
		At:        testIssuedAt.Add(time.Duration(seq) * 30 * time.Second),
	}
}
