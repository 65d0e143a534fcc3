// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package options

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/logger"
	"github.com/kestrelcove/protectbackup/pkg/secrets"
)

var singleton *DaemonOption

// GlobalOptions returns the process-wide parsed configuration. Config is
// loaded once at start (spec §6); there is no hot-reload watcher.
func GlobalOptions() *DaemonOption {
	return singleton
}

// ResolvedSecrets holds sealed config values resolved once at startup,
// keyed by a stable path so daemon wiring can look them up without
// re-threading raw strings through every constructor.
type ResolvedSecrets struct {
	UnifiPassword    secrets.Sealed
	DedupPassphrases map[string]secrets.Sealed // keyed by archive.remote[].name
}

// Parse reads configFile (TOML), applies UFP_<SECTION>_<KEY> environment
// overrides, validates every section, resolves sealed handles, and installs
// the result as the process singleton.
func Parse(configPath string) (*DaemonOption, *ResolvedSecrets, error) {
	bs, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read config %q", configPath)
	}
	op := new(DaemonOption)
	dec := toml.NewDecoder(strings.NewReader(string(bs)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(op); err != nil {
		return nil, nil, errors.Wrap(err, "decode TOML config (unknown keys are a hard error)")
	}

	applyEnvOverrides(op)

	if err := op.validate(); err != nil {
		return nil, nil, errors.Wrap(err, "validate config")
	}

	resolved, err := op.resolveSecrets()
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve sealed config values")
	}

	singleton = op
	logger.Infof("parsed config from %q", configPath)
	return op, resolved, nil
}

// applyEnvOverrides walks UFP_<SECTION>_<KEY> env vars and overwrites the
// matching TOML field, per spec §6. Dashes in TOML keys map to underscores
// in the env var name.
func applyEnvOverrides(op *DaemonOption) {
	const prefix = "UFP_"
	v := reflect.ValueOf(op).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		sectionName := strings.ToUpper(section.Tag.Get("toml"))
		applyEnvOverridesToStruct(v.Field(i), prefix+sectionName+"_")
	}
}

func applyEnvOverridesToStruct(v reflect.Value, envPrefix string) {
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("toml")
		if tag == "" || tag == "-" {
			continue
		}
		envName := envPrefix + strings.ToUpper(strings.ReplaceAll(tag, "-", "_"))
		raw, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				logger.Warnf("env override %s=%q is not a valid bool, ignored", envName, raw)
				continue
			}
			fv.SetBool(b)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				logger.Warnf("env override %s=%q is not a valid integer, ignored", envName, raw)
				continue
			}
			fv.SetInt(n)
		default:
			// Slices (detection-types, cameras, ...) and nested tables are
			// not override targets; spec §6 only requires scalar overrides.
		}
	}
}

func (o *DaemonOption) resolveSecrets() (*ResolvedSecrets, error) {
	pw, err := secrets.Resolve(o.Unifi.Password)
	if err != nil {
		return nil, errors.Wrap(err, "unifi.password")
	}
	rs := &ResolvedSecrets{
		UnifiPassword:    pw,
		DedupPassphrases: make(map[string]secrets.Sealed),
	}
	for _, rem := range o.Archive.Remote {
		if rem.DedupRepo == nil {
			continue
		}
		sealed, err := secrets.Resolve(rem.DedupRepo.Passphrase)
		if err != nil {
			return nil, errors.Wrapf(err, "archive.remote[%s].dedup-repo.passphrase", rem.Name)
		}
		rs.DedupPassphrases[rem.Name] = sealed
	}
	return rs, nil
}

// String renders a redacted summary suitable for startup logging: secrets
// are never included (spec §9 "never written to logs").
func (o *DaemonOption) String() string {
	return fmt.Sprintf("unifi=%s:%d backup.targets=%d archive.targets=%d database=%s",
		o.Unifi.Address, o.Unifi.Port, len(o.Backup.Remote), len(o.Archive.Remote), o.Database.Path)
}
