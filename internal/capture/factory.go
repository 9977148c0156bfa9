package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/bridge"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// FactoryConfig wires the shared collaborators of every strategy
type FactoryConfig struct {
	// Framework is nil on hosts without a native capture framework
	Framework        NativeFramework
	Bridge           *bridge.Bridge
	Assembler        *StreamAssembler
	ContentTimeout   time.Duration
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Factory creates one Strategy per recording
type Factory struct {
	cfg     FactoryConfig
	content *contentCache
	logger  *zap.Logger
}

// NewFactory creates a strategy factory
func NewFactory(cfg FactoryConfig) *Factory {
	f := &Factory{cfg: cfg, logger: logging.Component(cfg.Logger, "strategy-factory")}
	if cfg.Framework != nil {
		f.content = newContentCache(cfg.Framework, cfg.ContentTimeout, time.Minute)
	}
	return f
}

// New returns a fresh strategy of the given kind
func (f *Factory) New(kind models.StrategyKind) (Strategy, error) {
	switch kind {
	case models.StrategyNative:
		return f.native(), nil
	case models.StrategyBrowser:
		return f.browser(), nil
	case models.StrategyHybrid:
		return NewHybridBackend(f.native(), f.browser(), f.cfg.Logger), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", kind)
}

func (f *Factory) native() *NativeBackend {
	return NewNativeBackend(f.cfg.Framework, f.content, f.cfg.Assembler, f.cfg.Logger)
}

func (f *Factory) browser() *BrowserBackend {
	return NewBrowserBackend(f.cfg.Bridge, f.cfg.RequestTimeout, f.cfg.HandshakeTimeout, f.cfg.Logger)
}

// Capabilities probes the native framework for the facts Select needs. Framework
// checks never fail the caller; an unusable framework is reported as unavailable.
func (f *Factory) Capabilities(ctx context.Context, screen models.Permission, wantSystemAudio bool) Capabilities {
	c := Capabilities{ScreenPermission: screen, WantSystemAudio: wantSystemAudio}
	fw := f.cfg.Framework
	if fw == nil {
		return c
	}

	if err := fw.Check(ctx); err != nil {
		f.logger.Debug("Native framework unavailable", zap.String("framework", fw.Name()), zap.Error(err))
		c.NativeVersionOK = !isVersionGate(err)
		return c
	}
	c.NativeAvailable = true
	c.NativeVersionOK = true

	content, err := f.content.Get(ctx)
	if err != nil {
		f.logger.Debug("Native content query failed", zap.Error(err))
		return c
	}
	c.NativeSystemAudio = content.SystemAudio
	return c
}

// InvalidateContent drops the cached framework content, e.g. after a display change
func (f *Factory) InvalidateContent() {
	if f.content != nil {
		f.content.Invalidate()
	}
}

// VersionGateError reports an OS older than the framework's minimum
type VersionGateError struct {
	Framework string
	Have      string
	Need      string
}

func (e *VersionGateError) Error() string {
	have := e.Have
	if have == "" {
		have = "unknown"
	}
	return fmt.Sprintf("%s requires OS version %s or newer, have %s", e.Framework, e.Need, have)
}

func isVersionGate(err error) bool {
	var vg *VersionGateError
	return errors.As(err, &vg)
}
