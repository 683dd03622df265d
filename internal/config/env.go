package config

import (
	"os"
	"sort"
	"strconv"
)

// EnvOverride records one environment variable that changed the config.
type EnvOverride struct {
	EnvVar string `json:"envVar"`
	Path   string `json:"path"`
	Value  string `json:"value"`
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBool
)

type envVarMapping struct {
	path string
	kind valueKind
}

var envVarMappings = map[string]envVarMapping{
	"KMERGE_MERGE_ORDER":            {"merge.order", kindString},
	"KMERGE_MERGE_TYPE":             {"merge.type", kindString},
	"KMERGE_MERGE_READER":           {"merge.reader", kindString},
	"KMERGE_OUTPUT_COMPRESSION":     {"output.compression", kindString},
	"KMERGE_REPORT_PATH":            {"report.path", kindString},
	"KMERGE_REPORT_MAX_NOTICES":     {"report.maxNotices", kindInt},
	"KMERGE_LOG_LEVEL":              {"logging.level", kindString},
	"KMERGE_LOG_FORMAT":             {"logging.format", kindString},
	"KMERGE_LOG_FILE":               {"logging.file", kindString},
	"KMERGE_LOG_MAX_SIZE":           {"logging.maxSize", kindString},
	"KMERGE_LOG_MAX_BACKUPS":        {"logging.maxBackups", kindInt},
	"KMERGE_JOURNAL_ENABLED":        {"journal.enabled", kindBool},
	"KMERGE_JOURNAL_PATH":           {"journal.path", kindString},
	"KMERGE_JOURNAL_RETENTION_DAYS": {"journal.retentionDays", kindInt},
}

// applyEnvOverrides applies every set KMERGE_* variable that parses for its
// field. Unparseable values are ignored.
func applyEnvOverrides(cfg *Config) []EnvOverride {
	var applied []EnvOverride
	for _, name := range GetSupportedEnvVars() {
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		m := envVarMappings[name]

		var value any
		switch m.kind {
		case kindInt:
			n, err := strconv.Atoi(raw)
			if err != nil {
				continue
			}
			value = n
		case kindBool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				continue
			}
			value = b
		default:
			value = raw
		}

		if applyOverride(cfg, m.path, value) {
			applied = append(applied, EnvOverride{EnvVar: name, Path: m.path, Value: raw})
		}
	}
	return applied
}

// applyOverride sets the field at a dotted path. It returns false for an
// unknown path or a value of the wrong type.
func applyOverride(cfg *Config, path string, value any) bool {
	switch path {
	case "merge.order":
		return setString(&cfg.Merge.Order, value)
	case "merge.type":
		return setString(&cfg.Merge.Type, value)
	case "merge.reader":
		return setString(&cfg.Merge.Reader, value)
	case "output.compression":
		return setString(&cfg.Output.Compression, value)
	case "report.path":
		return setString(&cfg.Report.Path, value)
	case "report.maxNotices":
		return setInt(&cfg.Report.MaxNotices, value)
	case "logging.level":
		return setString(&cfg.Logging.Level, value)
	case "logging.format":
		return setString(&cfg.Logging.Format, value)
	case "logging.file":
		return setString(&cfg.Logging.File, value)
	case "logging.maxSize":
		return setString(&cfg.Logging.MaxSize, value)
	case "logging.maxBackups":
		return setInt(&cfg.Logging.MaxBackups, value)
	case "journal.enabled":
		return setBool(&cfg.Journal.Enabled, value)
	case "journal.path":
		return setString(&cfg.Journal.Path, value)
	case "journal.retentionDays":
		return setInt(&cfg.Journal.RetentionDays, value)
	}
	return false
}

func setString(dst *string, v any) bool {
	s, ok := v.(string)
	if ok {
		*dst = s
	}
	return ok
}

func setInt(dst *int, v any) bool {
	n, ok := v.(int)
	if ok {
		*dst = n
	}
	return ok
}

func setBool(dst *bool, v any) bool {
	b, ok := v.(bool)
	if ok {
		*dst = b
	}
	return ok
}

// GetSupportedEnvVars lists the recognized override variables, sorted.
func GetSupportedEnvVars() []string {
	names := make([]string, 0, len(envVarMappings))
	for name := range envVarMappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Overridden reports whether path was set from the environment.
func (r *LoadResult) Overridden(path string) bool {
	for _, o := range r.EnvOverrides {
		if o.Path == path {
			return true
		}
	}
	return false
}
