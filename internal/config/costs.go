package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StageCosts fixes the credit price of each generation stage.
type StageCosts struct {
	FrontView      int64 `mapstructure:"frontView"`
	RemainingViews int64 `mapstructure:"remainingViews"`
	Closeups       int64 `mapstructure:"closeups"`
	Components     int64 `mapstructure:"components"`
	Sketches       int64 `mapstructure:"sketches"`
}

// CreditPack maps a purchasable SKU to a number of credits.
type CreditPack struct {
	SKU     string `mapstructure:"sku"`
	Credits int64  `mapstructure:"credits"`
}

// CostsConfig is the tunable pricing surface of the service.
type CostsConfig struct {
	Stages StageCosts   `mapstructure:"stages"`
	Packs  []CreditPack `mapstructure:"packs"`
}

func DefaultCostsConfig() CostsConfig {
	return CostsConfig{
		Stages: StageCosts{
			FrontView:      2,
			RemainingViews: 4,
			Closeups:       2,
			Components:     2,
			// 3 sketches x 2 credits, charged as one stage
			Sketches: 6,
		},
		Packs: []CreditPack{
			{SKU: "pack_starter", Credits: 20},
			{SKU: "pack_studio", Credits: 100},
			{SKU: "pack_atelier", Credits: 500},
		},
	}
}

// CostsHolder exposes the current pricing config and hot-reloads it on change.
type CostsHolder struct {
	current atomic.Value // holds CostsConfig
}

func NewCostsHolder() (*CostsHolder, error) {
	v := viper.New()

	v.SetConfigName("costs")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/genpire/config")
	v.AddConfigPath("/etc/genpire")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GENPIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &CostsHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultCostsConfig())
		return holder, nil
	}

	var cfg CostsConfig
	if err := v.UnmarshalKey("costs", &cfg); err != nil {
		return nil, err
	}
	if err := validateCostsConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CostsConfig
		if err := v.UnmarshalKey("costs", &updated); err != nil {
			log.Printf("[costs-config] reload failed: %v", err)
			return
		}
		if err := validateCostsConfig(updated); err != nil {
			log.Printf("[costs-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[costs-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticCostsHolder returns a holder pinned to the given config. Tests use it.
func NewStaticCostsHolder(cfg CostsConfig) *CostsHolder {
	holder := &CostsHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *CostsHolder) Get() CostsConfig {
	return h.current.Load().(CostsConfig)
}

func validateCostsConfig(cfg CostsConfig) error {
	s := cfg.Stages
	if s.FrontView <= 0 || s.RemainingViews <= 0 || s.Closeups <= 0 || s.Components <= 0 || s.Sketches <= 0 {
		return errors.New("costs.stages must all be positive")
	}
	for _, pack := range cfg.Packs {
		if strings.TrimSpace(pack.SKU) == "" || pack.Credits <= 0 {
			return errors.New("costs.packs entries need a sku and positive credits")
		}
	}
	return nil
}
