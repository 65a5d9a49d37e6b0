package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore reads profiles the profile service writes as JSON values under
// directory:doctor:<id> and directory:patient:<id>.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed directory.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("directory: redis client required")
	}
	return &RedisStore{redis: redisClient}
}

func doctorKey(id string) string  { return fmt.Sprintf("directory:doctor:%s", id) }
func patientKey(id string) string { return fmt.Sprintf("directory:patient:%s", id) }

func (s *RedisStore) Doctor(ctx context.Context, id string) (*DoctorProfile, error) {
	var p DoctorProfile
	if err := s.get(ctx, doctorKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) Patient(ctx context.Context, id string) (*PatientProfile, error) {
	var p PatientProfile
	if err := s.get(ctx, patientKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutDoctor saves a doctor profile.
func (s *RedisStore) PutDoctor(ctx context.Context, p DoctorProfile) error {
	return s.set(ctx, doctorKey(p.ID), p)
}

// PutPatient saves a patient profile.
func (s *RedisStore) PutPatient(ctx context.Context, p PatientProfile) error {
	return s.set(ctx, patientKey(p.ID), p)
}

func (s *RedisStore) get(ctx context.Context, key string, dst any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("directory: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("directory: unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("directory: marshal %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("directory: set %s: %w", key, err)
	}
	return nil
}
