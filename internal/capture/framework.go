package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// ErrSystemAudioUnavailable is returned by a framework that could not open the system
// audio part of a joint request
var ErrSystemAudioUnavailable = errors.New("system audio unavailable")

// DefaultContentTimeout bounds framework content queries
const DefaultContentTimeout = 5 * time.Second

// Content is what a native framework reports it can capture
type Content struct {
	Displays    []string
	SystemAudio bool
}

// SessionConfig is one request to a native framework. Video is always captured; callers
// that need audio only drop the video track afterwards.
type SessionConfig struct {
	Surface     models.DeviceDescriptor
	SystemAudio *models.DeviceDescriptor
	Microphone  *models.DeviceDescriptor
	Quality     models.QualityTier

	VideoPath       string
	SystemAudioPath string
	MicrophonePath  string
}

// NativeSession is a running native capture
type NativeSession interface {
	// Stop finalizes the capture and returns the produced files
	Stop(ctx context.Context) (Artifacts, error)
	// Done is closed when the capture ends for any reason
	Done() <-chan struct{}
	Warnings() []string
}

// FrameworkOptions configure the native framework of this OS
type FrameworkOptions struct {
	FFmpegPath   string
	MinOSVersion string
	OSVersion    func(ctx context.Context) string
	Logger       *zap.Logger
}

// NativeFramework is an OS capture framework reached through its external tools
type NativeFramework interface {
	Name() string
	// Check returns nil when the framework can be used on this host
	Check(ctx context.Context) error
	// ShareableContent queries the framework's own content listing
	ShareableContent(ctx context.Context) (Content, error)
	Open(ctx context.Context, cfg SessionConfig) (NativeSession, error)
}

// contentCache bounds and caches ShareableContent so repeated starts do not re-enter
// the framework's query path
type contentCache struct {
	fw      NativeFramework
	timeout time.Duration
	ttl     time.Duration

	mu      sync.Mutex
	content *Content
	fetched time.Time
}

func newContentCache(fw NativeFramework, timeout, ttl time.Duration) *contentCache {
	if timeout <= 0 {
		timeout = DefaultContentTimeout
	}
	return &contentCache{fw: fw, timeout: timeout, ttl: ttl}
}

// Get returns cached content, querying the framework at most once per ttl. A zero ttl
// caches for the cache's lifetime.
func (c *contentCache) Get(ctx context.Context) (Content, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.content != nil && (c.ttl == 0 || time.Since(c.fetched) < c.ttl) {
		return *c.content, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		content Content
		err     error
	}
	done := make(chan result, 1)
	go func() {
		content, err := c.fw.ShareableContent(ctx)
		done <- result{content, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Content{}, r.err
		}
		c.content = &r.content
		c.fetched = time.Now()
		return r.content, nil
	case <-ctx.Done():
		return Content{}, fmt.Errorf("%s content query timed out after %s", c.fw.Name(), c.timeout)
	}
}

// Invalidate drops the cached content
func (c *contentCache) Invalidate() {
	c.mu.Lock()
	c.content = nil
	c.mu.Unlock()
}
