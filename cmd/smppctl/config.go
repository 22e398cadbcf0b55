package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/smppctl/internal/config"
)

// profileFile is a flat per-account overlay. Only keys present in the file
// replace values from the base config.
type profileFile struct {
	Name         string `toml:"name"`
	Address      string `toml:"address"`
	BindType     string `toml:"bind_type"`
	SystemID     string `toml:"system_id"`
	Password     string `toml:"password"`
	SystemType   string `toml:"system_type"`
	AddressRange string `toml:"address_range"`
	Version      string `toml:"version"`
	Dispatcher   string `toml:"dispatcher"`
	AutoRespond  bool   `toml:"auto_respond"`
	AdminAddr    string `toml:"admin_addr"`
	NATSURL      string `toml:"nats_url"`
	RedisAddr    string `toml:"redis_addr"`
}

func applyProfile(path string, cfg *config.ClientConfig) error {
	var raw profileFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load profile: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("address") {
		cfg.Link.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("bind_type") {
		cfg.Bind.Type = strings.ToLower(strings.TrimSpace(raw.BindType))
	}
	if meta.IsDefined("system_id") {
		cfg.Bind.SystemID = raw.SystemID
	}
	if meta.IsDefined("password") {
		cfg.Bind.Password = raw.Password
	}
	if meta.IsDefined("system_type") {
		cfg.Bind.SystemType = raw.SystemType
	}
	if meta.IsDefined("address_range") {
		cfg.Bind.AddressRange = raw.AddressRange
	}
	if meta.IsDefined("version") {
		cfg.Session.Version = strings.TrimSpace(raw.Version)
	}
	if meta.IsDefined("dispatcher") {
		cfg.Dispatcher.Kind = strings.ToLower(strings.TrimSpace(raw.Dispatcher))
	}
	if meta.IsDefined("auto_respond") {
		cfg.Session.AutoRespond = raw.AutoRespond
	}
	if meta.IsDefined("admin_addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("nats_url") {
		cfg.Relay.NATSURL = strings.TrimSpace(raw.NATSURL)
	}
	if meta.IsDefined("redis_addr") {
		cfg.Relay.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	}
	return nil
}
