package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vispipe.io/engine/object"
)

// ObjectRecord is the exported, serializable mirror of an arena's internal
// bookkeeping entry for one object. It is what gets published to the
// Rendezvous service so a peer process can recover an arena's object
// table — the one piece of arena state that attaching to the raw region
// by name cannot recover on its own.
type ObjectRecord struct {
	ID     object.ID   `json:"id"`
	Length uint64      `json:"length"`
	Kind   object.Kind `json:"kind"`
}

// Snapshot returns the current {id, length, kind} of every object stored
// in the arena, for publication through a Rendezvous.
func (a *Arena) Snapshot() []ObjectRecord {
	a.objMu.RLock()
	defer a.objMu.RUnlock()
	out := make([]ObjectRecord, 0, len(a.objects))
	for id, rec := range a.objects {
		out = append(out, ObjectRecord{ID: id, Length: rec.length, Kind: rec.kind})
	}
	return out
}

// Rendezvous is a Redis-backed metadata and payload exchange that lets a
// process attach to an arena created by a peer on the same host and
// recover its object table, which a bare shared-memory attach cannot do
// on its own. It stores the object index as a JSON blob and the
// serialized object bytes individually so a peer can selectively fetch
// only what it needs.
type Rendezvous struct {
	client *redis.Client
	prefix string
}

// RendezvousConfig configures a Rendezvous connection.
type RendezvousConfig struct {
	RedisURL  string // defaults to redis://localhost:6379/0
	KeyPrefix string // defaults to "arena:"
}

// NewRendezvous connects to Redis and returns a ready Rendezvous.
func NewRendezvous(ctx context.Context, cfg RendezvousConfig) (*Rendezvous, error) {
	url := cfg.RedisURL
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("arena: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("arena: connect to redis: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "arena:"
	}
	return &Rendezvous{client: client, prefix: prefix}, nil
}

// NewRendezvousWithClient wraps an existing redis.Client, e.g. one pointed
// at a miniredis instance in tests.
func NewRendezvousWithClient(client *redis.Client, keyPrefix string) *Rendezvous {
	if keyPrefix == "" {
		keyPrefix = "arena:"
	}
	return &Rendezvous{client: client, prefix: keyPrefix}
}

// Close releases the underlying Redis connection.
func (r *Rendezvous) Close() error {
	return r.client.Close()
}

func (r *Rendezvous) indexKey(arenaName string) string {
	return fmt.Sprintf("%s%s:index", r.prefix, arenaName)
}

func (r *Rendezvous) objectKey(id object.ID) string {
	return fmt.Sprintf("%sobj:%s", r.prefix, id)
}

// PublishIndex publishes the arena's object index under its name, and the
// serialized bytes of every object it names, so a peer can reconstruct
// the arena's object table via Attach.
func (r *Rendezvous) PublishIndex(ctx context.Context, a *Arena) error {
	records := a.Snapshot()

	for _, rec := range records {
		obj, ok, err := a.GetObject(rec.ID)
		if err != nil {
			return fmt.Errorf("arena: rendezvous read object %s: %w", rec.ID, err)
		}
		if !ok {
			continue
		}
		data, err := object.Encode(obj)
		if err != nil {
			return fmt.Errorf("arena: rendezvous encode object %s: %w", rec.ID, err)
		}
		if err := r.client.Set(ctx, r.objectKey(rec.ID), data, 0).Err(); err != nil {
			return fmt.Errorf("arena: rendezvous publish object %s: %w", rec.ID, err)
		}
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("arena: rendezvous marshal index: %w", err)
	}
	if err := r.client.Set(ctx, r.indexKey(a.Name()), payload, 0).Err(); err != nil {
		return fmt.Errorf("arena: rendezvous publish index: %w", err)
	}
	return nil
}

// Attach fetches the named arena's object index and every referenced
// object's bytes, then rebuilds a fresh local Arena with the same object
// ids. Unlike a bare region attach, this recovers the object table.
func (r *Rendezvous) Attach(ctx context.Context, arenaName string, capacity uint64) (*Arena, error) {
	payload, err := r.client.Get(ctx, r.indexKey(arenaName)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("arena: no rendezvous index for arena %q", arenaName)
	}
	if err != nil {
		return nil, fmt.Errorf("arena: rendezvous fetch index: %w", err)
	}

	var records []ObjectRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("arena: rendezvous unmarshal index: %w", err)
	}

	local := New(Config{Capacity: capacity, Name: arenaName})
	for _, rec := range records {
		data, err := r.client.Get(ctx, r.objectKey(rec.ID)).Bytes()
		if err == redis.Nil {
			continue // no blob stored for this record; it is left out of the rebuilt arena
		}
		if err != nil {
			return nil, fmt.Errorf("arena: rendezvous fetch object %s: %w", rec.ID, err)
		}
		obj, err := object.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("arena: rendezvous decode object %s: %w", rec.ID, err)
		}
		if err := local.StoreObject(obj); err != nil {
			return nil, fmt.Errorf("arena: rendezvous restore object %s: %w", rec.ID, err)
		}
	}
	return local, nil
}

// Heartbeat refreshes a short-lived liveness key for arenaName, letting
// peers distinguish a stale rendezvous entry from an arena whose owning
// process is still running.
func (r *Rendezvous) Heartbeat(ctx context.Context, arenaName string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+arenaName+":alive", time.Now().Unix(), ttl).Err()
}
