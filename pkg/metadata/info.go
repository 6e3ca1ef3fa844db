package metadata

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/metarender/pkg/errors"
	"github.com/matzehuels/metarender/pkg/recipe"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// InfoRecord is the package index entry of a rendered output.
type InfoRecord struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Build         string   `json:"build"`
	BuildNumber   int      `json:"build_number"`
	Platform      *string  `json:"platform"`
	Arch          *string  `json:"arch"`
	Subdir        string   `json:"subdir"`
	Depends       []string `json:"depends"`
	Timestamp     int64    `json:"timestamp"`
	License       string   `json:"license,omitempty"`
	LicenseFamily string   `json:"license_family,omitempty"`
	PreferredEnv  string   `json:"preferred_env,omitempty"`
	Constrains    []string `json:"constrains,omitempty"`
	Features      string   `json:"features,omitempty"`
	TrackFeatures string   `json:"track_features,omitempty"`
	Noarch        string   `json:"noarch,omitempty"`

	*AppMeta
}

// AppMeta is the app block of an info record.
type AppMeta struct {
	Type           string `json:"type"`
	Icon           string `json:"icon,omitempty"`
	Entry          string `json:"app_entry,omitempty"`
	AppType        string `json:"app_type,omitempty"`
	CLIOpts        string `json:"app_cli_opts,omitempty"`
	Summary        string `json:"summary,omitempty"`
	OwnEnvironment bool   `json:"app_own_environment,omitempty"`
}

// IsApp reports whether the recipe declares an app entry point.
func (r *Resolved) IsApp() bool { return recipe.String(r.doc, "app/entry") != "" }

// AppMeta returns the app block. The icon is recorded as the md5 of the
// icon file plus ".png".
func (r *Resolved) AppMeta() (AppMeta, error) {
	app := AppMeta{
		Type:           "app",
		Entry:          recipe.String(r.doc, "app/entry"),
		AppType:        recipe.String(r.doc, "app/type"),
		CLIOpts:        recipe.String(r.doc, "app/cli_opts"),
		Summary:        recipe.String(r.doc, "app/summary"),
		OwnEnvironment: recipe.Bool(r.doc, "app/own_environment", false),
	}
	if icon := recipe.String(r.doc, "app/icon"); icon != "" {
		sum, err := md5File(filepath.Join(r.path, icon))
		if err != nil {
			return AppMeta{}, err
		}
		app.Icon = sum + ".png"
	}
	return app, nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "app icon %s", path)
		}
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// InfoIndex returns the index entry of the output.
func (r *Resolved) InfoIndex() (InfoRecord, error) {
	platform := r.cfg.Platform
	arch := r.cfg.InfoArch()
	rec := InfoRecord{
		Name:          r.name,
		Version:       r.version,
		Build:         r.buildID,
		BuildNumber:   r.buildNumber,
		Platform:      &platform,
		Arch:          &arch,
		Subdir:        r.cfg.HostSubdir,
		Timestamp:     timeNow().UnixMilli(),
		License:       recipe.String(r.doc, "about/license"),
		LicenseFamily: recipe.String(r.doc, "about/license_family"),
		PreferredEnv:  recipe.String(r.doc, "build/preferred_env"),
		Constrains:    recipe.Strings(r.doc, "requirements/run_constrained"),
		Features:      strings.Join(recipe.Strings(r.doc, "build/features"), " "),
		TrackFeatures: strings.Join(recipe.Strings(r.doc, "build/track_features"), " "),
	}
	if platform == "noarch" {
		rec.Platform = nil
	}

	deps := r.deps[PhaseRun]
	rec.Depends = make([]string, len(deps))
	for i, ms := range deps {
		rec.Depends[i] = ms.String()
	}
	sort.Strings(rec.Depends)

	if noarch := r.Noarch(); noarch != "" {
		rec.Platform, rec.Arch = nil, nil
		rec.Subdir = "noarch"
		rec.Noarch = noarch
	}
	if r.IsApp() {
		app, err := r.AppMeta()
		if err != nil {
			return InfoRecord{}, err
		}
		rec.AppMeta = &app
	}
	return rec, nil
}
