package audit_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchgate/patchgate/audit"
)

func TestWriterAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "audit.jsonl")
	writer := audit.NewWriter(path)

	require.NoError(t, writer.Append(audit.Event{
		Type:       audit.TypeRequest,
		Capability: "write",
		Decision:   "auto",
		CommitSha:  "abc123",
	}))
	require.NoError(t, writer.Append(audit.Event{
		Type:     audit.TypeResolve,
		RecordID: "rec-1",
		Actor:    "ops1",
		Error:    "patch: rejected for a.txt",
	}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var events []audit.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event audit.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, audit.TypeRequest, events[0].Type)
	assert.Equal(t, "write", events[0].Capability)
	assert.False(t, events[0].Time.IsZero(), "time is stamped on append")
	assert.Equal(t, "ops1", events[1].Actor)
	assert.Equal(t, "rec-1", events[1].RecordID)
}
