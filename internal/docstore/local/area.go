package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2beens/fittrack/pkg"

	"github.com/go-redis/redis/v8"
)

//go:generate mockgen -source=$GOFILE -destination=area_mocks_test.go -package=local_test

// KeyValueArea is a persistent string keyed byte store, the only
// capability the fallback store needs from its environment.
type KeyValueArea interface {
	Ping(ctx context.Context) error
	// Get returns found=false for a missing key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// FileArea keeps each key in its own file under dir.
type FileArea struct {
	dir string
}

func NewFileArea(dir string) (*FileArea, error) {
	if err := pkg.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure local data dir: %w", err)
	}
	return &FileArea{dir: dir}, nil
}

func (a *FileArea) path(key string) string {
	return filepath.Join(a.dir, key+".json")
}

func (a *FileArea) Ping(_ context.Context) error {
	exists, err := pkg.PathExists(a.dir, true)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("local data dir %s is gone", a.dir)
	}
	return nil
}

func (a *FileArea) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(a.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set writes through a temp file and rename, so a crash mid-write keeps the old value.
func (a *FileArea) Set(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(a.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, a.path(key))
}

func (a *FileArea) Del(_ context.Context, key string) error {
	err := os.Remove(a.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RedisArea keeps each key as a redis string under a common prefix.
type RedisArea struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisArea(rdb redis.Cmdable, prefix string) *RedisArea {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisArea{
		rdb:    rdb,
		prefix: prefix,
	}
}

func (a *RedisArea) Ping(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}

func (a *RedisArea) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := a.rdb.Get(ctx, a.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (a *RedisArea) Set(ctx context.Context, key string, value []byte) error {
	return a.rdb.Set(ctx, a.prefix+key, value, 0).Err()
}

func (a *RedisArea) Del(ctx context.Context, key string) error {
	return a.rdb.Del(ctx, a.prefix+key).Err()
}
