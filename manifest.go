package fastboot

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ManifestFile is the build output describing how to boot the app.
const ManifestFile = "package.json"

// Manifest is the fastboot section of a built application's package.json.
type Manifest struct {
	AppName     string
	Config      map[string]json.RawMessage
	VendorFiles []string
	AppFiles    []string
	HTMLFile    string
}

type manifestJSON struct {
	Fastboot struct {
		AppName  string                     `json:"appName"`
		Config   map[string]json.RawMessage `json:"config"`
		Manifest struct {
			AppFiles    []string `json:"appFiles"`
			HTMLFile    string   `json:"htmlFile"`
			VendorFiles []string `json:"vendorFiles"`
		} `json:"manifest"`
	} `json:"fastboot"`
}

// ReadManifest parses the app's package.json. The app's own entry in
// the returned Config reflects values changed with App.Set.
func ReadManifest(app *App) (*Manifest, error) {
	raw, ok := app.File(ManifestFile)
	if !ok {
		return nil, errors.New("fastboot: missing " + ManifestFile)
	}
	var m manifestJSON
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("fastboot: decoding %s: %w", ManifestFile, err)
	}
	fb := m.Fastboot
	if len(fb.Manifest.AppFiles) == 0 {
		return nil, fmt.Errorf("fastboot: %s lists no app files", ManifestFile)
	}

	out := &Manifest{
		AppName:     fb.AppName,
		Config:      fb.Config,
		VendorFiles: fb.Manifest.VendorFiles,
		AppFiles:    fb.Manifest.AppFiles,
		HTMLFile:    fb.Manifest.HTMLFile,
	}
	if out.AppName == "" {
		out.AppName = app.Name()
	}
	if out.HTMLFile == "" {
		out.HTMLFile = IndexFile
	}
	if out.Config == nil {
		out.Config = map[string]json.RawMessage{}
	}
	own, err := json.Marshal(app.Config())
	if err != nil {
		return nil, fmt.Errorf("fastboot: encoding config: %w", err)
	}
	out.Config[out.AppName] = own
	return out, nil
}

func (m *Manifest) configJSON() (json.RawMessage, error) {
	return json.Marshal(m.Config)
}
