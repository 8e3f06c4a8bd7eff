package conversation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/grillo/pkg/store"
)

// ThreadDocument is the on-disk shape of a saved conversation: the records of
// every message in insertion order. Parent linkage is carried by the records
// themselves.
type ThreadDocument struct {
	ConversationID string         `json:"conversationID" yaml:"conversationID"`
	Messages       []store.Record `json:"messages" yaml:"messages"`
}

// SaveThread writes the manager's full message tree to path. The format is
// chosen by extension: .json, or .yaml/.yml.
func SaveThread(manager Manager, path string) error {
	doc := ThreadDocument{
		ConversationID: manager.ConversationID().String(),
	}
	for _, msg := range manager.Tree().All() {
		doc.Messages = append(doc.Messages, msg.Record())
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		return errors.Errorf("unsupported file format %q", filepath.Ext(path))
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal thread document")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "failed to write %s", path)
}

// LoadThread reads a thread document from path, replays its records into the
// store and returns a manager with the rebuilt tree. Records keep their
// original ids so parent links stay intact.
func LoadThread(ctx context.Context, rs store.RecordStore, path string, options ...ManagerOption) (*ManagerImpl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var doc ThreadDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, errors.Errorf("unsupported file format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal thread document")
	}

	if doc.ConversationID != "" {
		conversationID, err := uuid.Parse(doc.ConversationID)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid conversation id %q", doc.ConversationID)
		}
		options = append(options, WithConversationID(conversationID))
	}

	manager := NewManager(rs, options...)
	for _, rec := range doc.Messages {
		created, err := rs.Create(ctx, rec)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to restore record %s", rec.ID)
		}
		msg, err := newMessage(created, rs, manager.conversationID, manager.sinks, manager.policy)
		if err != nil {
			return nil, err
		}
		msg.tokens.End()
		manager.tree.Insert(msg)
	}
	return manager, nil
}
