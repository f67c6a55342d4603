// Package persist stores named JSON partitions of assistant state.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("partition not found")
	ErrUnsupportedVersion = errors.New("unsupported partition version")
)

// Partition names
const (
	PartitionRules       = "artemis-automation-rules"
	PartitionTrustLevels = "artemis-trust-levels"
	PartitionSettings    = "artemis-settings"
)

// Version is the envelope version written by this build
const Version = 1

// Store is a key value store of partitions
type Store interface {
	// Load returns ErrNotFound when the partition has never been saved
	Load(ctx context.Context, partition string) ([]byte, error)
	Save(ctx context.Context, partition string, data []byte) error
	Close() error
}

type envelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

// Encode wraps state in a versioned envelope
func Encode(state interface{}) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode partition state: %w", err)
	}
	return json.Marshal(envelope{Version: Version, State: raw})
}

// Decode unwraps an envelope into state
func Decode(data []byte, state interface{}) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode partition: %w", err)
	}
	if env.Version < 1 || env.Version > Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if len(env.State) == 0 {
		return fmt.Errorf("decode partition: missing state")
	}
	if err := json.Unmarshal(env.State, state); err != nil {
		return fmt.Errorf("decode partition state: %w", err)
	}
	return nil
}

// LoadInto loads and decodes a partition
func LoadInto(ctx context.Context, s Store, partition string, state interface{}) error {
	data, err := s.Load(ctx, partition)
	if err != nil {
		return err
	}
	if err := Decode(data, state); err != nil {
		return fmt.Errorf("%s: %w", partition, err)
	}
	return nil
}

// SaveFrom encodes and saves a partition
func SaveFrom(ctx context.Context, s Store, partition string, state interface{}) error {
	data, err := Encode(state)
	if err != nil {
		return fmt.Errorf("%s: %w", partition, err)
	}
	return s.Save(ctx, partition, data)
}
