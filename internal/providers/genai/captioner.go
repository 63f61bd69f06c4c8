package genai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	captionTTL     = 15 * time.Minute
	captionSweep   = 30 * time.Minute
	captionHashLen = 16
)

type describer interface {
	DescribeImage(ctx context.Context, imageJPEG []byte) (string, error)
}

// Captioner memoizes image descriptions by content hash so repeated
// generations over the same image do not trigger repeated vision calls.
type Captioner struct {
	model describer
	cache *gocache.Cache
}

func NewCaptioner(client *Client) *Captioner {
	return &Captioner{
		model: client,
		cache: gocache.New(captionTTL, captionSweep),
	}
}

// Describe returns the cached caption for the image bytes or asks the
// vision model for a fresh one. Failures are never cached.
func (c *Captioner) Describe(ctx context.Context, imageJPEG []byte) (string, error) {
	sum := sha256.Sum256(imageJPEG)
	key := hex.EncodeToString(sum[:])[:captionHashLen]

	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	caption, err := c.model.DescribeImage(ctx, imageJPEG)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, caption, gocache.DefaultExpiration)
	return caption, nil
}
