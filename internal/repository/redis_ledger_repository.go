package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	pkgredis "github.com/prohmpiriya/ticket-inventory/pkg/redis"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

//go:embed scripts/reserve_slot.lua
var reserveSlotScript string

//go:embed scripts/release_slot.lua
var releaseSlotScript string

//go:embed scripts/sync_event.lua
var syncEventScript string

// Script names for caching
const (
	scriptReserveSlot = "reserve_slot"
	scriptReleaseSlot = "release_slot"
	scriptSyncEvent   = "sync_event"
)

// dirtyEventsKey is the set of event IDs whose sold count changed since the last snapshot
const dirtyEventsKey = "inventory:dirty"

func eventKey(eventID string) string {
	return fmt.Sprintf("inventory:{%s}:event", eventID)
}

func releasedKey(eventID string) string {
	return fmt.Sprintf("inventory:{%s}:released", eventID)
}

// RedisLedgerRepository keeps sold counts in Redis hashes and mutates them with Lua scripts.
// Events are copied in from the event store on first use.
type RedisLedgerRepository struct {
	client *pkgredis.Client
}

// NewRedisLedgerRepository creates a new RedisLedgerRepository and registers its scripts
func NewRedisLedgerRepository(client *pkgredis.Client) *RedisLedgerRepository {
	client.RegisterScript(scriptReserveSlot, reserveSlotScript)
	client.RegisterScript(scriptReleaseSlot, releaseSlotScript)
	client.RegisterScript(scriptSyncEvent, syncEventScript)
	return &RedisLedgerRepository{client: client}
}

// LoadScripts loads all Lua scripts into Redis
func (r *RedisLedgerRepository) LoadScripts(ctx context.Context) error {
	return r.client.LoadScripts(ctx)
}

// ConditionalIncrement claims one seat inside the reserve_slot script
func (r *RedisLedgerRepository) ConditionalIncrement(ctx context.Context, eventID string) (*IncrementResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.conditional_increment")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	keys := []string{eventKey(eventID), dirtyEventsKey}
	values, err := r.run(ctx, scriptReserveSlot, keys, eventID, time.Now().UnixMilli())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		sold, _ := toInt64(values[1])
		capacity, _ := toInt64(values[2])
		span.SetAttributes(attribute.Int64("sold_count", sold))
		span.SetStatus(codes.Ok, "")
		return &IncrementResult{Success: true, SoldCount: sold, CapacityTotal: capacity}, nil
	}

	result := &IncrementResult{}
	result.ErrorCode, _ = values[1].(string)
	result.ErrorMessage, _ = values[2].(string)
	if len(values) >= 5 {
		result.SoldCount, _ = toInt64(values[3])
		result.CapacityTotal, _ = toInt64(values[4])
	}
	span.SetAttributes(attribute.String("error_code", result.ErrorCode))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Release gives one seat back, at most once per reservation ID
func (r *RedisLedgerRepository) Release(ctx context.Context, eventID, reservationID string) (*ReleaseResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.release")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("reservation_id", reservationID),
	)

	keys := []string{eventKey(eventID), releasedKey(eventID), dirtyEventsKey}
	values, err := r.run(ctx, scriptReleaseSlot, keys, eventID, reservationID, time.Now().UnixMilli())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	success, _ := toInt64(values[0])
	if success == 1 {
		sold, _ := toInt64(values[1])
		span.SetStatus(codes.Ok, "")
		return &ReleaseResult{Success: true, SoldCount: sold}, nil
	}

	result := &ReleaseResult{}
	result.ErrorCode, _ = values[1].(string)
	if len(values) > 2 {
		result.ErrorMessage, _ = values[2].(string)
	}
	span.SetAttributes(attribute.String("error_code", result.ErrorCode))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// GetInventory reads the ledger's copy of an event
func (r *RedisLedgerRepository) GetInventory(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.get_inventory")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	fields, err := r.client.Raw().HGetAll(ctx, eventKey(eventID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read ledger entry: %w", err)
	}
	if len(fields) == 0 {
		span.SetStatus(codes.Error, "event not found")
		return nil, domain.ErrEventNotFound
	}

	event := &domain.EventInventory{
		ID:       eventID,
		TenantID: fields["tenant_id"],
		Deleted:  fields["deleted"] == "1",
	}
	event.CapacityTotal, _ = toInt64(fields["capacity_total"])
	event.SoldCount, _ = toInt64(fields["sold_count"])
	if ms, ok := toInt64(fields["created_at"]); ok {
		event.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, ok := toInt64(fields["updated_at"]); ok {
		event.UpdatedAt = time.UnixMilli(ms).UTC()
	}

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// SyncEvent copies an event into the ledger if absent. A deleted flag always propagates.
func (r *RedisLedgerRepository) SyncEvent(ctx context.Context, event *domain.EventInventory) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.sync_event")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.Bool("deleted", event.Deleted),
	)

	deleted := "0"
	if event.Deleted {
		deleted = "1"
	}
	updatedAt := event.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	err := r.client.RunScript(ctx, scriptSyncEvent, []string{eventKey(event.ID)},
		event.TenantID,
		event.CapacityTotal,
		event.SoldCount,
		deleted,
		event.CreatedAt.UnixMilli(),
		updatedAt.UnixMilli(),
	).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to execute sync_event script: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// PopDirty removes up to limit changed events from the dirty set and reads their counters.
// An event changed after the pop is re-added by the script and picked up next time.
func (r *RedisLedgerRepository) PopDirty(ctx context.Context, limit int) ([]SoldCountSnapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.ledger.pop_dirty")
	defer span.End()

	rdb := r.client.Raw()
	ids, err := rdb.SPopN(ctx, dirtyEventsKey, int64(limit)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to pop dirty events: %w", err)
	}
	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "")
		return nil, nil
	}

	pipe := rdb.Pipeline()
	cmds := make([]*goredis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, eventKey(id), "sold_count")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		// put them back so the next tick retries
		_ = rdb.SAdd(ctx, dirtyEventsKey, toAny(ids)...).Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read dirty counters: %w", err)
	}

	snapshots := make([]SoldCountSnapshot, 0, len(ids))
	for i, cmd := range cmds {
		sold, err := cmd.Int64()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, SoldCountSnapshot{EventID: ids[i], SoldCount: sold})
	}

	span.SetAttributes(attribute.Int("count", len(snapshots)))
	span.SetStatus(codes.Ok, "")
	return snapshots, nil
}

// MarkDirty re-queues events whose snapshot could not be stored
func (r *RedisLedgerRepository) MarkDirty(ctx context.Context, eventIDs ...string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return r.client.Raw().SAdd(ctx, dirtyEventsKey, toAny(eventIDs)...).Err()
}

func (r *RedisLedgerRepository) run(ctx context.Context, script string, keys []string, args ...any) ([]any, error) {
	result := r.client.RunScript(ctx, script, keys, args...)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute %s script: %w", script, result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}
	return values, nil
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

var (
	_ InventoryRepository = (*RedisLedgerRepository)(nil)
	_ LedgerSyncer        = (*RedisLedgerRepository)(nil)
	_ DirtyTracker        = (*RedisLedgerRepository)(nil)
)
