// Package redistore implements the refresh-token store on Redis. Records
// live as hashes with secondary indexes by token hash and by jti, all
// expiring with the token itself, and rotation runs as a single Lua script
// so two concurrent rotations of the same record cannot both win.
//
// Keys are built by string concatenation, which assumes a non-cluster
// deployment or a hash-tagged prefix.
package redistore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	authkit "github.com/playcricket/authkit"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRotated  int64 = 1
	rotateStatusDone     int64 = 2
)

const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0, 0}
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
local replaced = redis.call("HGET", KEYS[1], "replaced_by")
if (revoked and revoked ~= "0") or (replaced and replaced ~= "0") then
  return {1, 0}
end

local id = redis.call("INCR", KEYS[2])
local key = ARGV[1] .. id
redis.call("HSET", key,
  "id", id,
  "user_id", ARGV[2],
  "token_hash", ARGV[3],
  "jti", ARGV[4],
  "ua", ARGV[5],
  "ip", ARGV[6],
  "device", ARGV[7],
  "expires_at", ARGV[8],
  "created_at", ARGV[9],
  "revoked_at", "0",
  "replaced_by", "0")
redis.call("PEXPIRE", key, ARGV[10])

redis.call("SET", ARGV[11] .. ARGV[3], id, "PX", ARGV[10])
redis.call("SET", ARGV[12] .. ARGV[4], id, "PX", ARGV[10])
redis.call("SADD", KEYS[3], id)

redis.call("HSET", KEYS[1], "revoked_at", ARGV[13], "replaced_by", id)
return {2, id}
`

var rotateLua = redis.NewScript(rotateScript)

// Store implements authkit.RefreshTokenStore. Other tables stay in the
// relational store; only the session hot path lives here.
type Store struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "auth"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(userID, id int64) string {
	return fmt.Sprintf("%s:rt:%d:%d", s.prefix, userID, id)
}

func (s *Store) recordPrefix(userID int64) string {
	return fmt.Sprintf("%s:rt:%d:", s.prefix, userID)
}

func (s *Store) hashKeyPrefix(userID int64) string {
	return fmt.Sprintf("%s:rth:%d:", s.prefix, userID)
}

func (s *Store) jtiKeyPrefix(userID int64) string {
	return fmt.Sprintf("%s:rtj:%d:", s.prefix, userID)
}

func (s *Store) userSetKey(userID int64) string {
	return fmt.Sprintf("%s:rtu:%d", s.prefix, userID)
}

func (s *Store) seqKey() string {
	return s.prefix + ":rt_seq"
}

func (s *Store) Create(ctx context.Context, t *authkit.RefreshToken) error {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return err
	}
	t.ID = id

	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return errors.New("redistore: token already expired")
	}

	key := s.recordKey(t.UserID, id)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, recordFields(t)...)
	pipe.PExpire(ctx, key, ttl)
	pipe.Set(ctx, s.hashKeyPrefix(t.UserID)+t.TokenHash, id, ttl)
	pipe.Set(ctx, s.jtiKeyPrefix(t.UserID)+t.JTI, id, ttl)
	pipe.SAdd(ctx, s.userSetKey(t.UserID), id)
	_, err = pipe.Exec(ctx)
	return err
}

func recordFields(t *authkit.RefreshToken) []interface{} {
	revoked := int64(0)
	if t.RevokedAt != nil {
		revoked = t.RevokedAt.UnixMilli()
	}
	replaced := int64(0)
	if t.ReplacedBy != nil {
		replaced = *t.ReplacedBy
	}
	return []interface{}{
		"id", t.ID,
		"user_id", t.UserID,
		"token_hash", t.TokenHash,
		"jti", t.JTI,
		"ua", t.UserAgent,
		"ip", t.IPAddress,
		"device", t.DeviceName,
		"expires_at", t.ExpiresAt.UnixMilli(),
		"created_at", t.CreatedAt.UnixMilli(),
		"revoked_at", revoked,
		"replaced_by", replaced,
	}
}

func (s *Store) GetByID(ctx context.Context, userID, id int64) (*authkit.RefreshToken, error) {
	return s.readRecord(ctx, s.recordKey(userID, id))
}

func (s *Store) GetByHash(ctx context.Context, userID int64, tokenHash string) (*authkit.RefreshToken, error) {
	return s.readIndexed(ctx, userID, s.hashKeyPrefix(userID)+tokenHash)
}

func (s *Store) GetRotatedByJTI(ctx context.Context, userID int64, jti string) (*authkit.RefreshToken, error) {
	rec, err := s.readIndexed(ctx, userID, s.jtiKeyPrefix(userID)+jti)
	if err != nil {
		return nil, err
	}
	if rec.ReplacedBy == nil {
		return nil, authkit.ErrNotFound
	}
	return rec, nil
}

func (s *Store) FindPredecessor(ctx context.Context, userID, id int64) (*authkit.RefreshToken, error) {
	ids, err := s.client.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range ids {
		memberID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		rec, err := s.readRecord(ctx, s.recordKey(userID, memberID))
		if err != nil {
			continue
		}
		if rec.ReplacedBy != nil && *rec.ReplacedBy == id {
			return rec, nil
		}
	}
	return nil, authkit.ErrNotFound
}

func (s *Store) Rotate(ctx context.Context, userID, oldID int64, next *authkit.RefreshToken) error {
	ttl := time.Until(next.ExpiresAt)
	if ttl <= 0 {
		return errors.New("redistore: token already expired")
	}

	res, err := rotateLua.Run(ctx, s.client,
		[]string{s.recordKey(userID, oldID), s.seqKey(), s.userSetKey(userID)},
		s.recordPrefix(userID),
		next.UserID,
		next.TokenHash,
		next.JTI,
		next.UserAgent,
		next.IPAddress,
		next.DeviceName,
		next.ExpiresAt.UnixMilli(),
		next.CreatedAt.UnixMilli(),
		ttl.Milliseconds(),
		s.hashKeyPrefix(userID),
		s.jtiKeyPrefix(userID),
		time.Now().UTC().UnixMilli(),
	).Result()
	if err != nil {
		return err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return errors.New("redistore: unexpected rotate reply")
	}
	status, _ := vals[0].(int64)
	switch status {
	case rotateStatusNotFound:
		return authkit.ErrNotFound
	case rotateStatusRotated:
		return authkit.ErrTokenRotated
	case rotateStatusDone:
		newID, _ := vals[1].(int64)
		next.ID = newID
		return nil
	default:
		return errors.New("redistore: unexpected rotate status")
	}
}

func (s *Store) Revoke(ctx context.Context, userID, id int64) error {
	key := s.recordKey(userID, id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return authkit.ErrNotFound
	}
	revoked, err := s.client.HGet(ctx, key, "revoked_at").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if revoked != "" && revoked != "0" {
		return nil
	}
	return s.client.HSet(ctx, key, "revoked_at", time.Now().UTC().UnixMilli()).Err()
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	ids, err := s.client.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC().UnixMilli()
	n := 0
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		key := s.recordKey(userID, id)
		revoked, err := s.client.HGet(ctx, key, "revoked_at").Result()
		if errors.Is(err, redis.Nil) {
			// Record expired; drop the dangling set member.
			s.client.SRem(ctx, s.userSetKey(userID), raw)
			continue
		}
		if err != nil {
			return n, err
		}
		if revoked == "0" || revoked == "" {
			if err := s.client.HSet(ctx, key, "revoked_at", now).Err(); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (s *Store) ListActiveByUser(ctx context.Context, userID int64) ([]authkit.RefreshToken, error) {
	ids, err := s.client.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []authkit.RefreshToken
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		rec, err := s.readRecord(ctx, s.recordKey(userID, id))
		if err != nil {
			continue
		}
		if rec.RevokedAt == nil && now.Before(rec.ExpiresAt) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *Store) readIndexed(ctx context.Context, userID int64, indexKey string) (*authkit.RefreshToken, error) {
	raw, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, authkit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redistore: corrupt index %s: %w", indexKey, err)
	}
	return s.readRecord(ctx, s.recordKey(userID, id))
}

func (s *Store) readRecord(ctx context.Context, key string) (*authkit.RefreshToken, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, authkit.ErrNotFound
	}

	rec := &authkit.RefreshToken{
		TokenHash:  fields["token_hash"],
		JTI:        fields["jti"],
		UserAgent:  fields["ua"],
		IPAddress:  fields["ip"],
		DeviceName: fields["device"],
	}
	rec.ID, _ = strconv.ParseInt(fields["id"], 10, 64)
	rec.UserID, _ = strconv.ParseInt(fields["user_id"], 10, 64)

	expires, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	rec.ExpiresAt = time.UnixMilli(expires).UTC()
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	rec.CreatedAt = time.UnixMilli(created).UTC()

	if revoked, _ := strconv.ParseInt(fields["revoked_at"], 10, 64); revoked != 0 {
		at := time.UnixMilli(revoked).UTC()
		rec.RevokedAt = &at
	}
	if replaced, _ := strconv.ParseInt(fields["replaced_by"], 10, 64); replaced != 0 {
		rec.ReplacedBy = &replaced
	}
	return rec, nil
}
