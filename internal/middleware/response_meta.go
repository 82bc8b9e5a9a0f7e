package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

type responseMeta struct {
	start  time.Time
	values map[string]interface{}
}

// WithResponseMeta starts the per-request metadata collected into the
// response envelope's meta block.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{start: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

// SetMeta records a value for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if meta := metaFrom(c); meta != nil {
		meta.values[key] = value
	}
}

// SetCacheHit records whether the payload came from the directory cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// ExtractMeta snapshots the metadata, stamping processing_time_ms at the
// moment the handler is about to write its response.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaFrom(c)
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta.values)+1)
	for k, v := range meta.values {
		out[k] = v
	}
	if _, exists := out["processing_time_ms"]; !exists {
		out["processing_time_ms"] = time.Since(meta.start).Milliseconds()
	}
	return out
}

func metaFrom(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	if value, exists := c.Get(responseMetaKey); exists {
		if meta, ok := value.(*responseMeta); ok {
			return meta
		}
	}
	return nil
}
