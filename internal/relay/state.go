package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "wpplink:relay:"

var (
	errDeviceNotFound = errors.New("device not found")
	errBadPassword    = errors.New("password mismatch")
)

// state keeps relay data in redis. Waits are lists popped with BLPOP so a
// notice posted before the waiter arrives is not lost.
type state struct {
	rdb         redis.UniversalClient
	linkTTL     time.Duration
	transferTTL time.Duration
}

func accountKey(aci, suffix string) string {
	return keyPrefix + "account:{" + aci + "}:" + suffix
}

func linkKey(token string) string {
	return keyPrefix + "link:" + token
}

func transferKey(aci string, deviceID uint32) string {
	return accountKey(aci, "transfer:"+strconv.FormatUint(uint64(deviceID), 10))
}

// authenticate accepts the first password seen for an account and compares
// later ones against it.
func (s *state) authenticate(ctx context.Context, aci, password string) error {
	key := accountKey(aci, "password")
	if _, err := s.rdb.SetNX(ctx, key, password, 0).Result(); err != nil {
		return err
	}
	stored, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	if stored != password {
		return errBadPassword
	}
	return nil
}

// allow counts one request against the account's per-minute budget.
func (s *state) allow(ctx context.Context, aci string, budget int, now time.Time) (bool, error) {
	key := accountKey(aci, "rate:"+strconv.FormatInt(now.Unix()/60, 10))
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(budget), nil
}

// registerDevice creates the next device id on the account and announces it
// to whoever waits on token. Device 1 is the primary.
func (s *state) registerDevice(ctx context.Context, aci, token, name string, now time.Time) (linksync.LinkedDevice, error) {
	seq, err := s.rdb.Incr(ctx, accountKey(aci, "device_seq")).Result()
	if err != nil {
		return linksync.LinkedDevice{}, err
	}
	created := uint64(now.UnixMilli())
	device := linksync.LinkedDevice{
		ID:       uint32(seq + 1),
		Name:     name,
		LastSeen: created,
		Created:  created,
	}
	data, err := json.Marshal(device)
	if err != nil {
		return linksync.LinkedDevice{}, err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, accountKey(aci, "devices"), strconv.FormatUint(uint64(device.ID), 10), data)
	pipe.RPush(ctx, linkKey(token), data)
	pipe.Expire(ctx, linkKey(token), s.linkTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return linksync.LinkedDevice{}, fmt.Errorf("register device: %w", err)
	}
	return device, nil
}

func (s *state) device(ctx context.Context, aci string, id uint32) (linksync.LinkedDevice, error) {
	data, err := s.rdb.HGet(ctx, accountKey(aci, "devices"), strconv.FormatUint(uint64(id), 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return linksync.LinkedDevice{}, errDeviceNotFound
	}
	if err != nil {
		return linksync.LinkedDevice{}, err
	}
	var d linksync.LinkedDevice
	if err := json.Unmarshal(data, &d); err != nil {
		return linksync.LinkedDevice{}, err
	}
	return d, nil
}

// waitForLinkedDevice blocks up to timeout; ok is false when nothing linked.
func (s *state) waitForLinkedDevice(ctx context.Context, token string, timeout time.Duration) (linksync.LinkedDevice, bool, error) {
	var d linksync.LinkedDevice
	ok, err := s.pop(ctx, linkKey(token), timeout, &d)
	return d, ok, err
}

func (s *state) putTransferArchive(ctx context.Context, aci string, deviceID uint32, ta linksync.TransferArchive) error {
	data, err := json.Marshal(ta)
	if err != nil {
		return err
	}
	key := transferKey(aci, deviceID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.transferTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *state) waitForTransferArchive(ctx context.Context, aci string, deviceID uint32, timeout time.Duration) (linksync.TransferArchive, bool, error) {
	var ta linksync.TransferArchive
	ok, err := s.pop(ctx, transferKey(aci, deviceID), timeout, &ta)
	return ta, ok, err
}

func (s *state) pop(ctx context.Context, key string, timeout time.Duration, v any) (bool, error) {
	res, err := s.rdb.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// res is [key, value].
	if err := json.Unmarshal([]byte(res[1]), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
