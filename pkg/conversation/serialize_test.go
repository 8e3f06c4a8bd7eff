package conversation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/store"
)

func buildThread(t *testing.T) *ManagerImpl {
	t.Helper()
	ctx := context.Background()
	manager := NewManager(store.NewMemoryStore(), WithProducer(countingProducer(10)))

	appendPrompt(t, manager)
	reply, err := manager.Append(ctx, AppendOptions{Role: RoleAssistant})
	require.NoError(t, err)
	reply.Tokens().Drain()
	require.NoError(t, manager.AwaitIdle(ctx))
	return manager
}

func TestSaveLoadThread(t *testing.T) {
	for _, ext := range []string{".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			ctx := context.Background()
			manager := buildThread(t)

			path := filepath.Join(t.TempDir(), "thread"+ext)
			require.NoError(t, SaveThread(manager, path))

			loaded, err := LoadThread(ctx, store.NewMemoryStore(), path)
			require.NoError(t, err)
			assert.Equal(t, manager.ConversationID(), loaded.ConversationID())

			original := manager.Tree().All()
			restored := loaded.Tree().All()
			require.Len(t, restored, len(original))
			for i, msg := range restored {
				assert.Equal(t, original[i].Record(), msg.Record())
			}

			// parent links survive the round trip
			thread := loaded.Thread(loaded.Tree().LastID())
			require.Len(t, thread, 3)
			assert.Equal(t, RoleAssistant, thread[2].Role())
			content, ok := thread[2].Content()
			require.True(t, ok)
			assert.Equal(t, "0123456789", content)
			assert.Equal(t, StatusFinished, thread[2].Status())
		})
	}
}

func TestSaveThreadUnsupportedFormat(t *testing.T) {
	manager := buildThread(t)
	err := SaveThread(manager, filepath.Join(t.TempDir(), "thread.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestLoadThreadMissingFile(t *testing.T) {
	_, err := LoadThread(context.Background(), store.NewMemoryStore(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
