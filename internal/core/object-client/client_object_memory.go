package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/markdave123-py/botwise/internal/core"
)

// MemoryClient stores objects in process under mem://bucket/key URLs.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ core.ObjectClient = (*MemoryClient)(nil)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte)}
}

func (c *MemoryClient) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	c.mu.Lock()
	c.objects[bucket+"/"+key] = b
	c.mu.Unlock()
	return "mem://" + bucket + "/" + key, nil
}

func (c *MemoryClient) DeleteFile(_ context.Context, bucket, key string) error {
	c.mu.Lock()
	delete(c.objects, bucket+"/"+key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	c.mu.RLock()
	b, ok := c.objects[bucket+"/"+key]
	c.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.KindNotFound, "object "+bucket+"/"+key+" not found", nil)
	}
	return bytes.Clone(b), nil
}

func (c *MemoryClient) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b, err := c.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (c *MemoryClient) DeletePrefix(_ context.Context, bucket, prefix string) (int, error) {
	full := bucket + "/" + prefix
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.objects {
		if strings.HasPrefix(k, full) {
			delete(c.objects, k)
			n++
		}
	}
	return n, nil
}
