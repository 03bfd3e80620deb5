// Package ops loads and hot-reloads the JSON configuration a broker
// facade instance runs with: the security catalog, order-validation
// tunables, and feature flags, using an mtime-polling reload loop.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

// FileConfig mirrors the on-disk JSON layout.
type FileConfig struct {
	Venues   []VenueConfig    `json:"venues"`
	Order    OrderLimitsConfig `json:"order"`
	Features FeatureFlagsConfig `json:"features"`
}

// VenueConfig describes one tradeable security's reference data.
type VenueConfig struct {
	Code       string `json:"code"`
	Exchange   string `json:"exchange"`
	Name       string `json:"name"`
	Multiplier string `json:"multiplier"`
	PriceTick  string `json:"priceTick"`
}

// OrderLimitsConfig captures risk-adjacent order-validation tunables.
type OrderLimitsConfig struct {
	MaxOrderVolume    int64  `json:"maxOrderVolume"`
	MarginFactor      string `json:"marginFactor"`
	AssetsDebounceMs  int64  `json:"assetsDebounceMs"`
}

// FeatureFlagsConfig captures optional runtime flags, as *bool so an
// absent key means "use the resolved default" rather than false.
type FeatureFlagsConfig struct {
	EnableSepOverlay *bool `json:"enableSepOverlay"`
	EnableRedisCache *bool `json:"enableRedisCache"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	EnableSepOverlay bool
	EnableRedisCache bool
}

// OrderLimits are the resolved order-validation tunables.
type OrderLimits struct {
	MaxOrderVolume   int64
	MarginFactor     decimal.Decimal
	AssetsDebounce   time.Duration
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Securities []schema.Security
	Order      OrderLimits
	Features   FeatureFlags
}

// Load reads and validates a JSON config file.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}

	securities, err := resolveSecurities(cfg.Venues)
	if err != nil {
		return Loaded{}, err
	}
	limits, err := resolveOrderLimits(cfg.Order)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Securities: securities,
		Order:      limits,
		Features:   resolveFeatures(cfg.Features),
	}, nil
}

func resolveSecurities(cfgs []VenueConfig) ([]schema.Security, error) {
	out := make([]schema.Security, 0, len(cfgs))
	for _, c := range cfgs {
		if c.Code == "" {
			return nil, fmt.Errorf("ops: security code is empty")
		}
		multiplier, err := decimal.NewFromString(c.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("ops: security %s: invalid multiplier: %w", c.Code, err)
		}
		if multiplier.IsZero() || multiplier.LessThan(decimal.Zero) {
			return nil, fmt.Errorf("ops: security %s: multiplier must be > 0", c.Code)
		}
		priceTick, err := decimal.NewFromString(c.PriceTick)
		if err != nil {
			return nil, fmt.Errorf("ops: security %s: invalid priceTick: %w", c.Code, err)
		}
		out = append(out, schema.Security{
			Code:       c.Code,
			Exchange:   c.Exchange,
			Name:       c.Name,
			Multiplier: multiplier,
			PriceTick:  priceTick,
		})
	}
	return out, nil
}

func resolveOrderLimits(cfg OrderLimitsConfig) (OrderLimits, error) {
	limits := OrderLimits{
		MaxOrderVolume: cfg.MaxOrderVolume,
		MarginFactor:   decimal.NewFromInt(1),
		AssetsDebounce: 55 * time.Millisecond,
	}
	if limits.MaxOrderVolume <= 0 {
		limits.MaxOrderVolume = 1_000_000
	}
	if cfg.MarginFactor != "" {
		mf, err := decimal.NewFromString(cfg.MarginFactor)
		if err != nil {
			return OrderLimits{}, fmt.Errorf("ops: invalid marginFactor: %w", err)
		}
		if mf.LessThan(decimal.Zero) || mf.GreaterThan(decimal.NewFromInt(1)) {
			return OrderLimits{}, fmt.Errorf("ops: marginFactor must be within [0, 1]")
		}
		limits.MarginFactor = mf
	}
	if cfg.AssetsDebounceMs > 0 {
		limits.AssetsDebounce = time.Duration(cfg.AssetsDebounceMs) * time.Millisecond
	}
	return limits, nil
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{
		EnableSepOverlay: true,
		EnableRedisCache: false,
	}
	if cfg.EnableSepOverlay != nil {
		flags.EnableSepOverlay = *cfg.EnableSepOverlay
	}
	if cfg.EnableRedisCache != nil {
		flags.EnableRedisCache = *cfg.EnableRedisCache
	}
	return flags
}

// Watch polls path's mtime every interval and calls update with the
// freshly parsed config whenever it changes, until ctx is canceled. A
// parse failure is logged and skipped; the previous config keeps running.
func Watch(ctx interface {
	Done() <-chan struct{}
}, path string, interval time.Duration, update func(Loaded)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Errorf("ops: config stat failed path=%s err=%+v", path, err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := Load(path)
			if err != nil {
				logs.Errorf("ops: config reload failed path=%s err=%+v", path, err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("ops: config reloaded path=%s", path)
		}
	}
}
