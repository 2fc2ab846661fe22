package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"raidwatch/internal/source"
)

const (
	seenPrefix    = "seen/"
	ranksPrefix   = "ranks/"
	messagePrefix = "message/"
)

func SeenKey(sourceID string) string  { return seenPrefix + sourceID }
func RanksKey(sourceID string) string { return ranksPrefix + sourceID }
func MessageKey(sourceID, channelID string) string {
	return messagePrefix + sourceID + "/" + channelID
}

// State is the typed view of the store used by the watcher pipeline.
type State struct {
	store Store
}

func NewState(store Store) *State { return &State{store: store} }

func (s *State) Store() Store { return s.store }

func (s *State) getJSON(ctx context.Context, key string, out any) (bool, error) {
	b, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *State) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.store.Put(ctx, key, b)
}

// Seen returns the stored seen set; a missing record is an empty set.
func (s *State) Seen(ctx context.Context, sourceID string) (source.SeenSet, error) {
	var seen source.SeenSet
	if _, err := s.getJSON(ctx, SeenKey(sourceID), &seen); err != nil {
		return nil, err
	}
	return seen, nil
}

func (s *State) PutSeen(ctx context.Context, sourceID string, seen source.SeenSet) error {
	if seen == nil {
		seen = source.SeenSet{}
	}
	return s.putJSON(ctx, SeenKey(sourceID), seen)
}

// Ranks returns the stored ranking map keyed by entity key.
func (s *State) Ranks(ctx context.Context, sourceID string) (map[string]source.RankRecord, error) {
	m := map[string]source.RankRecord{}
	if _, err := s.getJSON(ctx, RanksKey(sourceID), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// PutRanks replaces the whole ranking map in one write.
func (s *State) PutRanks(ctx context.Context, sourceID string, ranks map[string]source.RankRecord) error {
	return s.putJSON(ctx, RanksKey(sourceID), ranks)
}

func (s *State) TrackedMessage(ctx context.Context, sourceID, channelID string) (source.TrackedMessage, bool, error) {
	var tm source.TrackedMessage
	ok, err := s.getJSON(ctx, MessageKey(sourceID, channelID), &tm)
	if err != nil || !ok || tm.MessageID == "" {
		return source.TrackedMessage{}, false, err
	}
	return tm, true, nil
}

func (s *State) PutTrackedMessage(ctx context.Context, sourceID string, tm source.TrackedMessage) error {
	if tm.ChannelID == "" || tm.MessageID == "" {
		return errors.New("tracked message needs channel and message id")
	}
	return s.putJSON(ctx, MessageKey(sourceID, tm.ChannelID), tm)
}

// Reset deletes every record of sourceID and returns how many were removed.
func (s *State) Reset(ctx context.Context, sourceID string) (int, error) {
	keys := []string{SeenKey(sourceID), RanksKey(sourceID)}
	msgs, err := s.store.Keys(ctx, messagePrefix+sourceID+"/")
	if err != nil {
		return 0, err
	}
	keys = append(keys, msgs...)

	n := 0
	for _, k := range keys {
		_, ok, err := s.store.Get(ctx, k)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if err := s.store.Delete(ctx, k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Dump returns the raw records of sourceID keyed by store key.
func (s *State) Dump(ctx context.Context, sourceID string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	keys, err := s.store.Keys(ctx, messagePrefix+sourceID+"/")
	if err != nil {
		return nil, err
	}
	keys = append([]string{SeenKey(sourceID), RanksKey(sourceID)}, keys...)
	for _, k := range keys {
		b, ok, err := s.store.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = b
		}
	}
	return out, nil
}
