package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"storefront_ledger/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Hash fields of a user document
const (
	fieldAccountID    = "account_id"
	fieldExternalUID  = "external_uid"
	fieldEmail        = "email"
	fieldDisplayName  = "display_name"
	fieldAvatarURL    = "avatar_url"
	fieldBalance      = "balance"
	fieldRole         = "role"
	fieldLoginCount   = "login_count"
	fieldLastActiveAt = "last_active_at"
)

// storeScript sets every field pair in ARGV on the hash. login_count only
// moves up: a lower value from a stale device is ignored.
var storeScript = redis.NewScript(`
local key = KEYS[1]
for i = 1, #ARGV, 2 do
  local field, value = ARGV[i], ARGV[i + 1]
  if field == 'login_count' then
    local current = tonumber(redis.call('HGET', key, field) or '0') or 0
    if tonumber(value) > current then
      redis.call('HSET', key, field, value)
    end
  else
    redis.call('HSET', key, field, value)
  end
end
return 1
`)

// RedisDocumentStore keeps one hash per user. Writes set fields, never
// increment them, so replaying a patch leaves the same document behind.
type RedisDocumentStore struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisDocumentStore stores documents under prefix, "userdoc:" when empty
func NewRedisDocumentStore(rdb redis.Cmdable, prefix string) *RedisDocumentStore {
	if prefix == "" {
		prefix = "userdoc:"
	}
	return &RedisDocumentStore{rdb: rdb, prefix: prefix}
}

func (s *RedisDocumentStore) Name() string { return "document" }

// DocumentKey is keyed by external UID; accounts without one fall back to their id
func (s *RedisDocumentStore) DocumentKey(key domain.AccountKey) string {
	if key.ExternalUID != "" {
		return s.prefix + key.ExternalUID
	}
	return s.prefix + "acct:" + strconv.FormatUint(uint64(key.AccountID), 10)
}

// Fetch reads the whole document. A missing document is domain.ErrNotFound.
func (s *RedisDocumentStore) Fetch(ctx context.Context, key domain.AccountKey) (domain.CachedUserRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, s.DocumentKey(key)).Result()
	if err != nil {
		return domain.CachedUserRecord{}, fmt.Errorf("%w: document read: %v", domain.ErrRemoteSyncFailure, err)
	}
	if len(fields) == 0 {
		return domain.CachedUserRecord{}, domain.ErrNotFound
	}
	rec, err := decodeDocument(fields)
	if err != nil {
		return domain.CachedUserRecord{}, fmt.Errorf("decode %s: %w", s.DocumentKey(key), err)
	}
	if rec.AccountID == 0 {
		rec.AccountID = key.AccountID
	}
	return rec, nil
}

// Store sets the fields the patch carries, keeping the larger login count
func (s *RedisDocumentStore) Store(ctx context.Context, key domain.AccountKey, patch domain.CachedUserRecord) error {
	patch.AccountID = key.AccountID
	if patch.ExternalUID == "" {
		patch.ExternalUID = key.ExternalUID
	}
	doc := encodeDocument(patch)
	if len(doc) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(doc))
	for field, value := range doc {
		args = append(args, field, value)
	}
	if err := storeScript.Run(ctx, s.rdb, []string{s.DocumentKey(key)}, args...).Err(); err != nil {
		return fmt.Errorf("%w: document write: %v", domain.ErrRemoteSyncFailure, err)
	}
	return nil
}

func encodeDocument(r domain.CachedUserRecord) map[string]any {
	out := map[string]any{}
	if r.AccountID != 0 {
		out[fieldAccountID] = strconv.FormatUint(uint64(r.AccountID), 10)
	}
	if r.ExternalUID != "" {
		out[fieldExternalUID] = r.ExternalUID
	}
	if r.Email != nil {
		out[fieldEmail] = *r.Email
	}
	if r.DisplayName != nil {
		out[fieldDisplayName] = *r.DisplayName
	}
	if r.AvatarURL != nil {
		out[fieldAvatarURL] = *r.AvatarURL
	}
	if r.Balance != nil {
		out[fieldBalance] = r.Balance.StringFixed(2)
	}
	if r.Role != nil {
		out[fieldRole] = *r.Role
	}
	if r.LoginCount != nil {
		out[fieldLoginCount] = strconv.FormatInt(*r.LoginCount, 10)
	}
	if r.LastActiveAt != nil {
		out[fieldLastActiveAt] = r.LastActiveAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func decodeDocument(fields map[string]string) (domain.CachedUserRecord, error) {
	var r domain.CachedUserRecord
	str := func(name string) *string {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		return &v
	}

	if v, ok := fields[fieldAccountID]; ok {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return r, fmt.Errorf("account_id: %w", err)
		}
		r.AccountID = uint(id)
	}
	r.ExternalUID = fields[fieldExternalUID]
	r.Email = str(fieldEmail)
	r.DisplayName = str(fieldDisplayName)
	r.AvatarURL = str(fieldAvatarURL)
	r.Role = str(fieldRole)
	if v, ok := fields[fieldBalance]; ok {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return r, fmt.Errorf("balance: %w", err)
		}
		r.Balance = &d
	}
	if v, ok := fields[fieldLoginCount]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return r, fmt.Errorf("login_count: %w", err)
		}
		r.LoginCount = &n
	}
	if v, ok := fields[fieldLastActiveAt]; ok {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return r, fmt.Errorf("last_active_at: %w", err)
		}
		r.LastActiveAt = &ts
	}
	return r, nil
}
