// Package store persists backend entities in BoltDB. All durable state lives
// here, behind the backend boundary; the client engine itself keeps nothing
// on disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/stash/internal/domain"
)

// Bucket names
var (
	bucketCreators    = []byte("creators")
	bucketSources     = []byte("sources")
	bucketFeedItems   = []byte("feed_items")
	bucketWarehouse   = []byte("warehouse_items")
	bucketCredentials = []byte("credentials")
	bucketSettings    = []byte("settings")
)

const settingsKey = "app"

// Store is the BoltDB-backed entity store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store under dir. An empty dir opens an
// in-memory-style store in the OS temp directory, used by tests.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "stash.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketCreators, bucketSources, bucketFeedItems, bucketWarehouse, bucketCredentials, bucketSettings}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// === Generic helpers ===

func (s *Store) get(bucket []byte, key string, dest any) error {
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return domain.ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (s *Store) put(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *Store) delete(bucket []byte, key string) error {
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) == nil {
			return nil
		}
		found = true
		return b.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

// scan decodes every value in a bucket into T and keeps those matching keep
// (nil keeps all).
func scan[T any](s *Store, bucket []byte, keep func(T) bool) ([]T, error) {
	var out []T
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("corrupt record %q: %w", k, err)
			}
			if keep == nil || keep(item) {
				out = append(out, item)
			}
		}
		return nil
	})
	return out, err
}

// === Creators ===

func (s *Store) Creators() ([]domain.Creator, error) {
	return scan[domain.Creator](s, bucketCreators, nil)
}

func (s *Store) Creator(id string) (domain.Creator, error) {
	var c domain.Creator
	err := s.get(bucketCreators, id, &c)
	return c, err
}

func (s *Store) PutCreator(c domain.Creator) error {
	return s.put(bucketCreators, c.ID, c)
}

// DeleteCreator removes a creator and cascades to its sources, feed items,
// and warehouse items.
func (s *Store) DeleteCreator(id string) error {
	if err := s.delete(bucketCreators, id); err != nil {
		return err
	}
	sources, err := s.Sources(id)
	if err != nil {
		return err
	}
	for _, src := range sources {
		if err := s.DeleteSource(src.ID); err != nil {
			return err
		}
	}
	items, err := s.WarehouseItems(id)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.delete(bucketWarehouse, item.ID); err != nil {
			return err
		}
	}
	return nil
}

// === Sources ===

func (s *Store) AllSources() ([]domain.Source, error) {
	return scan[domain.Source](s, bucketSources, nil)
}

func (s *Store) Sources(creatorID string) ([]domain.Source, error) {
	return scan(s, bucketSources, func(src domain.Source) bool {
		return src.CreatorID == creatorID
	})
}

func (s *Store) Source(id string) (domain.Source, error) {
	var src domain.Source
	err := s.get(bucketSources, id, &src)
	return src, err
}

func (s *Store) PutSource(src domain.Source) error {
	return s.put(bucketSources, src.ID, src)
}

// DeleteSource removes a source and its feed items.
func (s *Store) DeleteSource(id string) error {
	if err := s.delete(bucketSources, id); err != nil {
		return err
	}
	items, err := s.FeedItems(id)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.delete(bucketFeedItems, item.ID); err != nil {
			return err
		}
	}
	return nil
}

// === Feed items ===

func (s *Store) FeedItems(sourceID string) ([]domain.FeedItem, error) {
	return scan(s, bucketFeedItems, func(f domain.FeedItem) bool {
		return f.SourceID == sourceID
	})
}

// FeedItemsBySources returns the feed items of all given sources.
func (s *Store) FeedItemsBySources(sourceIDs []string) ([]domain.FeedItem, error) {
	wanted := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		wanted[id] = struct{}{}
	}
	return scan(s, bucketFeedItems, func(f domain.FeedItem) bool {
		_, ok := wanted[f.SourceID]
		return ok
	})
}

func (s *Store) FeedItem(id string) (domain.FeedItem, error) {
	var f domain.FeedItem
	err := s.get(bucketFeedItems, id, &f)
	return f, err
}

// FeedItemByExternalID finds a source's feed item by its platform-assigned id.
func (s *Store) FeedItemByExternalID(sourceID, externalID string) (domain.FeedItem, error) {
	items, err := scan(s, bucketFeedItems, func(f domain.FeedItem) bool {
		return f.SourceID == sourceID && f.ExternalID == externalID
	})
	if err != nil {
		return domain.FeedItem{}, err
	}
	if len(items) == 0 {
		return domain.FeedItem{}, domain.ErrNotFound
	}
	return items[0], nil
}

func (s *Store) PutFeedItem(f domain.FeedItem) error {
	return s.put(bucketFeedItems, f.ID, f)
}

// === Warehouse items ===

func (s *Store) WarehouseItems(creatorID string) ([]domain.WarehouseItem, error) {
	return scan(s, bucketWarehouse, func(w domain.WarehouseItem) bool {
		return w.CreatorID == creatorID
	})
}

func (s *Store) AllWarehouseItems() ([]domain.WarehouseItem, error) {
	return scan[domain.WarehouseItem](s, bucketWarehouse, nil)
}

func (s *Store) WarehouseItem(id string) (domain.WarehouseItem, error) {
	var w domain.WarehouseItem
	err := s.get(bucketWarehouse, id, &w)
	return w, err
}

func (s *Store) PutWarehouseItem(w domain.WarehouseItem) error {
	return s.put(bucketWarehouse, w.ID, w)
}

func (s *Store) DeleteWarehouseItem(id string) error {
	return s.delete(bucketWarehouse, id)
}

// === Credentials ===

func (s *Store) Credentials() ([]domain.Credential, error) {
	return scan[domain.Credential](s, bucketCredentials, nil)
}

func (s *Store) Credential(id string) (domain.Credential, error) {
	var c domain.Credential
	err := s.get(bucketCredentials, id, &c)
	return c, err
}

func (s *Store) PutCredential(c domain.Credential) error {
	return s.put(bucketCredentials, c.ID, c)
}

func (s *Store) DeleteCredential(id string) error {
	return s.delete(bucketCredentials, id)
}

// === Settings ===

// Settings returns the stored app settings, or defaults when none exist yet.
func (s *Store) Settings() (domain.AppSettings, error) {
	var settings domain.AppSettings
	err := s.get(bucketSettings, settingsKey, &settings)
	if err == domain.ErrNotFound {
		return DefaultSettings(), nil
	}
	return settings, err
}

func (s *Store) PutSettings(settings domain.AppSettings) error {
	return s.put(bucketSettings, settingsKey, settings)
}

// DefaultSettings returns the first-run settings.
func DefaultSettings() domain.AppSettings {
	home, _ := os.UserHomeDir()
	return domain.AppSettings{
		LibraryPath:          filepath.Join(home, "Videos", "stash"),
		DefaultQuality:       "1080p",
		SyncIntervalSeconds:  3600,
		Theme:                "dark",
		NotificationsEnabled: true,
		BassBoostPreset:      "off",
	}
}
