package storage

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
)

// Version is the current envelope version.
const Version = 0

// Envelope wraps persisted aggregate state.
type Envelope struct {
	State   json.RawMessage `json:"state"`
	Version int             `json:"version"`
}

// Save stores v under key inside an Envelope.
func Save(ctx context.Context, kv KV, key string, v any) error {
	state, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	data, err := json.Marshal(Envelope{State: state, Version: Version})
	if err != nil {
		return errors.Wrapf(err, "marshal %s envelope", key)
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

// Load decodes the state stored under key into v. It reports false, with a
// nil error, when the key does not exist.
func Load(ctx context.Context, kv KV, key string, v any) (bool, error) {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, errors.Wrapf(err, "decode %s envelope", key)
	}
	if env.Version != Version {
		return false, errors.Errorf("%s: unsupported version %d", key, env.Version)
	}
	if len(env.State) == 0 || string(env.State) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(env.State, v); err != nil {
		return false, errors.Wrapf(err, "decode %s state", key)
	}
	return true, nil
}
