package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/habitsync/internal/model"
)

// maxTxRetries bounds optimistic transaction retries on a contended key.
const maxTxRetries = 10

// RedisStore keeps one user's documents in redis.
//
// Layout under prefix "habitsync:{user}:":
//
//	journal            hash of entry id -> entry JSON
//	catalog:{kind}     JSON array of rows
//	order:{kind}       JSON array of ids
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns the document store for user on client.
func NewRedisStore(client *redis.Client, user string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "habitsync:" + user + ":",
	}
}

// RedisDirectory hands out a RedisStore per user sharing client.
func RedisDirectory(client *redis.Client) Directory {
	return DirectoryFunc(func(user string) Client {
		return NewRedisStore(client, user)
	})
}

// DialRedis parses redisURL and checks the connection.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w: %w", ErrUnreachable, err)
	}
	return client, nil
}

func (s *RedisStore) journalKey() string { return s.prefix + "journal" }

func (s *RedisStore) catalogKey(kind model.Kind) string { return s.prefix + "catalog:" + string(kind) }

func (s *RedisStore) orderKey(kind model.Kind) string { return s.prefix + "order:" + string(kind) }

// FetchSnapshot implements Client.
func (s *RedisStore) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	docKeys := make([]string, 0, 2*len(model.Kinds))
	for _, kind := range model.Kinds {
		docKeys = append(docKeys, s.catalogKey(kind), s.orderKey(kind))
	}

	var (
		docs    *redis.SliceCmd
		journal *redis.MapStringStringCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		docs = pipe.MGet(ctx, docKeys...)
		journal = pipe.HGetAll(ctx, s.journalKey())
		return nil
	})
	if err != nil {
		return model.Snapshot{}, unreachable("fetch snapshot", err)
	}

	snap := model.EmptySnapshot()
	values := docs.Val()
	for i, kind := range model.Kinds {
		if err := decodeCatalog(&snap, kind, values[2*i]); err != nil {
			return model.Snapshot{}, err
		}
		if raw, ok := values[2*i+1].(string); ok {
			var order []model.EntityID
			if err := json.Unmarshal([]byte(raw), &order); err != nil {
				return model.Snapshot{}, fmt.Errorf("decode %s: %w", kind.OrderKey(), err)
			}
			if order != nil {
				snap.SetOrder(kind, order)
			}
		}
	}

	for id, raw := range journal.Val() {
		var entry model.JournalEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return model.Snapshot{}, fmt.Errorf("decode journal entry %s: %w", id, err)
		}
		snap.Journal = append(snap.Journal, entry)
	}
	model.SortJournal(snap.Journal)
	return snap, nil
}

func decodeCatalog(snap *model.Snapshot, kind model.Kind, value any) error {
	raw, ok := value.(string)
	if !ok {
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	for _, r := range rows {
		row, err := model.DecodeRow(kind, r)
		if err != nil {
			return err
		}
		if err := snap.UpsertRow(row); err != nil {
			return err
		}
	}
	return nil
}

// PushSnapshot implements Client. All collections are written in one
// MULTI/EXEC transaction.
func (s *RedisStore) PushSnapshot(ctx context.Context, snap model.Snapshot) error {
	type doc struct {
		key   string
		value any
		set   bool
	}
	docs := []doc{
		{s.catalogKey(model.KindProtocols), snap.Protocols, snap.Protocols != nil},
		{s.catalogKey(model.KindInnerfaces), snap.Innerfaces, snap.Innerfaces != nil},
		{s.catalogKey(model.KindStates), snap.States, snap.States != nil},
		{s.catalogKey(model.KindQuickActions), snap.QuickActions, snap.QuickActions != nil},
	}
	for _, kind := range model.Kinds {
		order := snap.Order(kind)
		docs = append(docs, doc{s.orderKey(kind), order, order != nil})
	}

	encoded := make(map[string][]byte, len(docs))
	for _, d := range docs {
		if !d.set {
			continue
		}
		raw, err := json.Marshal(d.value)
		if err != nil {
			return fmt.Errorf("push snapshot: encode %s: %w", d.key, err)
		}
		encoded[d.key] = raw
	}
	var entries []any
	for _, e := range snap.Journal {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("push snapshot: encode journal entry %s: %w", e.ID, err)
		}
		entries = append(entries, e.ID, raw)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, raw := range encoded {
			pipe.Set(ctx, key, raw, 0)
		}
		if snap.Journal != nil {
			pipe.Del(ctx, s.journalKey())
			if len(entries) > 0 {
				pipe.HSet(ctx, s.journalKey(), entries...)
			}
		}
		return nil
	})
	if err != nil {
		return unreachable("push snapshot", err)
	}
	return nil
}

// AppendJournalEntry implements Client.
func (s *RedisStore) AppendJournalEntry(ctx context.Context, entry model.JournalEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("append journal entry %s: %w", entry.ID, err)
	}
	if err := s.client.HSetNX(ctx, s.journalKey(), entry.ID, raw).Err(); err != nil {
		return unreachable("append journal entry", err)
	}
	return nil
}

// DeleteJournalEntry implements Client.
func (s *RedisStore) DeleteJournalEntry(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.journalKey(), id).Err(); err != nil {
		return unreachable("delete journal entry", err)
	}
	return nil
}

// UpsertCatalogRow implements Client.
func (s *RedisStore) UpsertCatalogRow(ctx context.Context, kind model.Kind, raw json.RawMessage) error {
	row, err := model.DecodeRow(kind, raw)
	if err != nil {
		return badRequest("%v", err)
	}
	return s.updateCatalog(ctx, kind, func(snap *model.Snapshot) error {
		return snap.UpsertRow(row)
	})
}

// DeleteCatalogRow implements Client.
func (s *RedisStore) DeleteCatalogRow(ctx context.Context, kind model.Kind, id model.EntityID) error {
	if !kind.Valid() {
		return badRequest("unknown kind %q", kind)
	}
	return s.updateCatalog(ctx, kind, func(snap *model.Snapshot) error {
		_, err := snap.DeleteRow(kind, id)
		return err
	})
}

// updateCatalog rewrites the catalog of kind under WATCH, retrying when a
// concurrent writer touched the key.
func (s *RedisStore) updateCatalog(ctx context.Context, kind model.Kind, apply func(*model.Snapshot) error) error {
	key := s.catalogKey(kind)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		snap := model.EmptySnapshot()
		if err == nil {
			if err := decodeCatalog(&snap, kind, current); err != nil {
				return err
			}
		}
		if err := apply(&snap); err != nil {
			return err
		}
		rows, err := rowsOf(snap, kind)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, rows, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return unreachable("update "+string(kind), err)
	}
	return unreachable("update "+string(kind), fmt.Errorf("gave up after %d contended attempts", maxTxRetries))
}

func rowsOf(snap model.Snapshot, kind model.Kind) ([]byte, error) {
	var v any
	switch kind {
	case model.KindProtocols:
		v = snap.Protocols
	case model.KindInnerfaces:
		v = snap.Innerfaces
	case model.KindStates:
		v = snap.States
	case model.KindQuickActions:
		v = snap.QuickActions
	default:
		return nil, badRequest("unknown kind %q", kind)
	}
	return json.Marshal(v)
}

// unreachable classifies a redis failure. Rejections raised while
// applying an update pass through unchanged.
func unreachable(op string, err error) error {
	if IsRejected(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnreachable, err)
}
