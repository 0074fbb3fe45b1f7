package repo

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

// RedisStore keeps each account as a JSON document plus side keys that
// carry the concurrency-sensitive state:
//
//	<prefix>account:<id>                 JSON document (profile, role, flags)
//	<prefix>account:<id>:unlocked        SET of unlocked target ids
//	<prefix>account:<id>:unlock_count    INCR counter
//	<prefix>account:<id>:last_unlocked   unix nanos of the last unlock activity
//	<prefix>role:<role>                  SET of account ids, the query index
//
// SADD reports whether the member was new, which is the conditional append.
type RedisStore struct {
	c      *redis.Client
	prefix string
}

const mergeRetries = 3

func NewRedisStore(c *redis.Client, prefix string) *RedisStore {
	return &RedisStore{c: c, prefix: prefix}
}

func (r *RedisStore) docKey(id string) string { return r.prefix + "account:" + id }
func (r *RedisStore) unlockedKey(id string) string { return r.prefix + "account:" + id + ":unlocked" }
func (r *RedisStore) countKey(id string) string { return r.prefix + "account:" + id + ":unlock_count" }
func (r *RedisStore) lastKey(id string) string { return r.prefix + "account:" + id + ":last_unlocked" }
func (r *RedisStore) roleKey(role entity.Role) string { return r.prefix + "role:" + string(role) }

var allRoles = []entity.Role{entity.RoleParticipant, entity.RoleHost, entity.RoleAdmin}

func encodeDoc(a *entity.Account) (string, error) {
	doc := *a
	doc.UnlockedTargets = nil
	doc.UnlockCount = 0
	doc.LastUnlockedAt = nil
	b, err := json.Marshal(&doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Get assembles the document and its side keys in one round trip.
func (r *RedisStore) Get(ctx context.Context, id string) (*entity.Account, error) {
	pipe := r.c.Pipeline()
	docCmd := pipe.Get(ctx, r.docKey(id))
	setCmd := pipe.SMembers(ctx, r.unlockedKey(id))
	countCmd := pipe.Get(ctx, r.countKey(id))
	lastCmd := pipe.Get(ctx, r.lastKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("get account", err)
	}
	raw, err := docCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get account", err)
	}
	var a entity.Account
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, unavailable("decode account", err)
	}
	a.UnlockedTargets = setCmd.Val()
	if a.UnlockedTargets == nil {
		a.UnlockedTargets = []string{}
	}
	if n, err := countCmd.Int64(); err == nil {
		a.UnlockCount = n
	}
	if ns, err := lastCmd.Int64(); err == nil {
		ts := time.Unix(0, ns).UTC()
		a.LastUnlockedAt = &ts
	}
	return &a, nil
}

// createScript writes the document and its index entry in one step so a
// stored account is always reachable from its role set.
// KEYS: doc, role set, unlocked set, counter. ARGV: doc, id, count, targets...
var createScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call('SADD', KEYS[2], ARGV[2])
if tonumber(ARGV[3]) > 0 then redis.call('SET', KEYS[4], ARGV[3]) end
for i = 4, #ARGV do redis.call('SADD', KEYS[3], ARGV[i]) end
return 1
`)

// Create stores a new account; an existing id is never overwritten.
func (r *RedisStore) Create(ctx context.Context, a *entity.Account) error {
	doc, err := encodeDoc(a)
	if err != nil {
		return err
	}
	args := make([]any, 0, 3+len(a.UnlockedTargets))
	args = append(args, doc, a.ID, a.UnlockCount)
	for _, t := range a.UnlockedTargets {
		args = append(args, t)
	}
	keys := []string{r.docKey(a.ID), r.roleKey(a.Role), r.unlockedKey(a.ID), r.countKey(a.ID)}
	created, err := createScript.Run(ctx, r.c, keys, args...).Int64()
	if err != nil {
		return unavailable("create account", err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Query walks the role index sets with SSCAN and loads each member.
// Ids whose document disappeared in the meantime are skipped.
func (r *RedisStore) Query(ctx context.Context, f Filter) iter.Seq2[*entity.Account, error] {
	roles := allRoles
	if f.Role != nil {
		roles = []entity.Role{*f.Role}
	}
	return func(yield func(*entity.Account, error) bool) {
		for _, role := range roles {
			var cursor uint64
			for {
				ids, next, err := r.c.SScan(ctx, r.roleKey(role), cursor, "", 200).Result()
				if err != nil {
					yield(nil, unavailable("scan accounts", err))
					return
				}
				for _, id := range ids {
					a, err := r.Get(ctx, id)
					if errors.Is(err, ErrNotFound) {
						continue
					}
					if err != nil {
						if !yield(nil, err) {
							return
						}
						continue
					}
					if !f.Matches(a) {
						continue
					}
					if !yield(a, nil) {
						return
					}
				}
				cursor = next
				if cursor == 0 {
					break
				}
			}
		}
	}
}

// SetMerge rewrites the document under WATCH so a concurrent merge forces a retry.
func (r *RedisStore) SetMerge(ctx context.Context, id string, patch entity.AccountPatch) error {
	key := r.docKey(id)
	for i := 0; i < mergeRetries; i++ {
		err := r.c.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrNotFound
				}
				return err
			}
			var a entity.Account
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				return err
			}
			oldRole := a.Role
			patch.Apply(&a)
			a.UpdatedAt = time.Now().UTC()
			doc, err := encodeDoc(&a)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, doc, 0)
				if a.Role != oldRole {
					pipe.SRem(ctx, r.roleKey(oldRole), id)
					pipe.SAdd(ctx, r.roleKey(a.Role), id)
				}
				return nil
			})
			return err
		}, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound):
			return err
		default:
			return unavailable("merge account", err)
		}
	}
	return unavailable("merge account", redis.TxFailedErr)
}

// appendScript checks the document and adds the target in one step; SADD
// reports whether the member was new. Returns -1 when the account is gone.
// KEYS: doc, unlocked set, last unlocked. ARGV: target, unix nanos.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local added = redis.call('SADD', KEYS[2], ARGV[1])
if added == 1 then redis.call('SET', KEYS[3], ARGV[2]) end
return added
`)

// incrScript bumps the counter only while the document exists.
// KEYS: doc, counter.
var incrScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('INCR', KEYS[2])
`)

func (r *RedisStore) ConditionalAppend(ctx context.Context, id, target string) (AppendResult, error) {
	keys := []string{r.docKey(id), r.unlockedKey(id), r.lastKey(id)}
	added, err := appendScript.Run(ctx, r.c, keys, target, strconv.FormatInt(time.Now().UnixNano(), 10)).Int64()
	if err != nil {
		return 0, unavailable("append unlocked target", err)
	}
	switch added {
	case -1:
		return 0, ErrNotFound
	case 0:
		return AlreadyPresent, nil
	}
	return Appended, nil
}

func (r *RedisStore) IncrementUnlockCount(ctx context.Context, id string) error {
	n, err := incrScript.Run(ctx, r.c, []string{r.docKey(id), r.countKey(id)}).Int64()
	if err != nil {
		return unavailable("increment unlock count", err)
	}
	if n == -1 {
		return ErrNotFound
	}
	return nil
}

// Delete drops the document, its side keys and its index entries.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}
	_, err := r.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.docKey(id), r.unlockedKey(id), r.countKey(id), r.lastKey(id))
		for _, role := range allRoles {
			pipe.SRem(ctx, r.roleKey(role), id)
		}
		return nil
	})
	if err != nil {
		return unavailable("delete account", err)
	}
	return nil
}

func (r *RedisStore) mustExist(ctx context.Context, id string) error {
	n, err := r.c.Exists(ctx, r.docKey(id)).Result()
	if err != nil {
		return unavailable("lookup account", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
