package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/MegaGrindStone/chat-screen/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB archives dialogue transcripts in a BoltDB file. Each screen run is a session holding its
// entries in the order they were shown. The archive is write-only from the screen's point of view:
// nothing is read back into a live dialogue.
type BoltDB struct {
	db *bolt.DB
}

var sessionsBucket = []byte("sessions")

// NewBoltDB opens (or creates with 0600 permissions) the archive file at path and makes sure the
// sessions bucket exists.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create sessions bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func entryBucketName(sessionID string) []byte {
	return []byte(fmt.Sprintf("session-%s", sessionID))
}

// sequenceKey keeps ForEach order equal to insertion order.
func sequenceKey(seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%020d-%s", seq, id))
}

// Sessions retrieves all archived sessions, newest first.
func (b BoltDB) Sessions(context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := b.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var session models.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("failed to unmarshal session: %w", err)
			}
			sessions = append(sessions, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(sessions)
	return sessions, nil
}

// AddSession stores a new session record and creates its entry bucket.
func (b BoltDB) AddSession(_ context.Context, session models.Session) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		if _, err := tx.CreateBucketIfNotExists(entryBucketName(session.ID)); err != nil {
			return fmt.Errorf("failed to create entry bucket: %w", err)
		}

		v, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		return b.Put(sequenceKey(seq, session.ID), v)
	})
}

// AddEntry appends entry to the session's bucket. It fails if the session was never added.
func (b BoltDB) AddEntry(_ context.Context, sessionID string, entry models.DialogueEntry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucketName(sessionID))
		if b == nil {
			return fmt.Errorf("session %s not found", sessionID)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		return b.Put(sequenceKey(seq, entry.ID), v)
	})
}

// Entries retrieves the entries of a session in the order they were added. An unknown session has
// no entries.
func (b BoltDB) Entries(_ context.Context, sessionID string) ([]models.DialogueEntry, error) {
	var entries []models.DialogueEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entryBucketName(sessionID))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var entry models.DialogueEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
