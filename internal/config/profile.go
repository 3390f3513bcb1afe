// Package config loads directive profiles: optional YAML documents that
// override process directives without touching pipeline code, typically to
// redirect executors or storeDir paths between environments.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/flume/pkg/api"
)

// Profile is a parsed directive profile.
//
//	defaults:
//	  errorStrategy: ignore
//	processes:
//	  align:
//	    executor: sge
//	    cache: deep
//	    storeDir: /data/store
type Profile struct {
	Defaults  Override            `yaml:"defaults"`
	Processes map[string]Override `yaml:"processes"`
}

// Override holds the optional directive fields of one profile entry. Pointer
// fields distinguish "unset" from an explicit zero value.
type Override struct {
	// Cache accepts the YAML booleans true/false as well as the string
	// "deep".
	Cache           *string        `yaml:"-"`
	RawCache        *yaml.Node     `yaml:"cache"`
	Echo            *bool          `yaml:"echo"`
	ErrorStrategy   *string        `yaml:"errorStrategy"`
	Executor        *string        `yaml:"executor"`
	StoreDir        *string        `yaml:"storeDir"`
	ValidExitStatus []int          `yaml:"validExitStatus"`
}

// Load reads and parses a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse parses a profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := p.Defaults.normalize(); err != nil {
		return nil, err
	}
	for name, o := range p.Processes {
		if err := o.normalize(); err != nil {
			return nil, fmt.Errorf("config: process %s: %w", name, err)
		}
		p.Processes[name] = o
	}
	return &p, nil
}

func (o *Override) normalize() error {
	if o.RawCache == nil {
		return nil
	}
	var asBool bool
	if err := o.RawCache.Decode(&asBool); err == nil {
		s := string(api.CacheOff)
		if asBool {
			s = string(api.CacheStandard)
		}
		o.Cache = &s
		return nil
	}
	var asString string
	if err := o.RawCache.Decode(&asString); err != nil {
		return fmt.Errorf("config: invalid cache value: %w", err)
	}
	if asString != string(api.CacheDeep) && asString != string(api.CacheStandard) && asString != string(api.CacheOff) {
		return fmt.Errorf("config: invalid cache value %q", asString)
	}
	o.Cache = &asString
	return nil
}

// Apply layers the profile onto a process's declared directives: the
// defaults section first, then the process-specific entry.
func (p *Profile) Apply(def *api.ProcessDefinition) {
	d := def.Directives
	p.Defaults.apply(&d)
	if o, ok := p.Processes[def.Name]; ok {
		o.apply(&d)
	}
	def.Directives = d
}

func (o Override) apply(d *api.Directives) {
	if o.Cache != nil {
		d.Cache = api.CacheMode(*o.Cache)
	}
	if o.Echo != nil {
		d.Echo = *o.Echo
	}
	if o.ErrorStrategy != nil {
		d.ErrorStrategy = api.ErrorStrategy(*o.ErrorStrategy)
	}
	if o.Executor != nil {
		d.Executor = *o.Executor
	}
	if o.StoreDir != nil {
		d.StoreDir = *o.StoreDir
	}
	if len(o.ValidExitStatus) > 0 {
		d.ValidExitStatus = o.ValidExitStatus
	}
}
