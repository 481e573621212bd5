/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package userdata renders first boot configuration for new instances
package userdata

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// Ubuntus lists release code names that identify Ubuntu images
var Ubuntus = []string{
	"utopic", "vivid", "wily", "xenial", "yakkety", "zesty", "artful", "bionic", "cosmic",
	"disco", "eoan", "focal", "groovy", "hirsute", "impish", "jammy", "kinetic", "lunar",
	"mantic", "noble", "oracular", "plucky",
}

// IgnitionVersion is the spec version of rendered ignition payloads
const IgnitionVersion = "3.1.0"

// Request carries the inputs of a user data payload
type Request struct {
	Name          string
	Domain        string
	Image         string
	User          string
	Keys          []string
	Cmds          []string
	Files         []contracts.FileSpec
	EnableRoot    bool
	StoreMetadata bool
	Metadata      map[string]string
}

// FQDN returns the host name including the domain, when one is set
func (r Request) FQDN() string {
	if r.Domain == "" {
		return r.Name
	}
	return r.Name + "." + strings.TrimSuffix(r.Domain, ".")
}

// Generator renders cloud-init and ignition payloads
type Generator struct{}

// NewGenerator returns the default generator
func NewGenerator() *Generator {
	return &Generator{}
}

// IsUbuntu reports whether the image is an Ubuntu family image
func IsUbuntu(image string) bool {
	lower := strings.ToLower(image)
	if strings.Contains(lower, "ubuntu") {
		return true
	}
	for _, u := range Ubuntus {
		if strings.Contains(lower, u) {
			return true
		}
	}
	return false
}

// NeedsIgnition reports whether the image boots from an ignition payload
func (g *Generator) NeedsIgnition(image string) bool {
	lower := strings.ToLower(image)
	for _, p := range []string{"rhcos", "fcos", "fedora-coreos", "flatcar", "coreos"} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DefaultUser returns the login user baked into well known images
func (g *Generator) DefaultUser(image string) string {
	lower := strings.ToLower(image)
	switch {
	case lower == "":
		return "root"
	case g.NeedsIgnition(lower):
		return "core"
	case strings.HasPrefix(lower, "centos"):
		return "centos"
	case strings.HasPrefix(lower, "debian"):
		return "debian"
	case strings.HasPrefix(lower, "fedora"):
		return "fedora"
	case strings.HasPrefix(lower, "rhel"), strings.HasPrefix(lower, "rocky"), strings.HasPrefix(lower, "alma"):
		return "cloud-user"
	case strings.HasPrefix(lower, "sles"), strings.Contains(lower, "opensuse"):
		return "sles"
	case strings.HasPrefix(lower, "arch"):
		return "arch"
	case IsUbuntu(lower):
		return "ubuntu"
	default:
		return "root"
	}
}

type writeFile struct {
	Path        string `yaml:"path"`
	Content     string `yaml:"content"`
	Permissions string `yaml:"permissions,omitempty"`
}

type cloudConfig struct {
	Hostname          string      `yaml:"hostname"`
	FQDN              string      `yaml:"fqdn,omitempty"`
	DisableRoot       *bool       `yaml:"disable_root,omitempty"`
	SSHPwauth         *bool       `yaml:"ssh_pwauth,omitempty"`
	SSHAuthorizedKeys []string    `yaml:"ssh_authorized_keys,omitempty"`
	WriteFiles        []writeFile `yaml:"write_files,omitempty"`
	RunCmd            []string    `yaml:"runcmd,omitempty"`
}

// CloudInit renders a #cloud-config document
func (g *Generator) CloudInit(req Request) (string, error) {
	if req.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	cfg := cloudConfig{
		Hostname:          req.Name,
		SSHAuthorizedKeys: req.Keys,
		RunCmd:            req.Cmds,
	}
	if req.Domain != "" {
		cfg.FQDN = req.FQDN()
	}
	if req.EnableRoot {
		f := false
		cfg.DisableRoot = &f
	}
	for _, file := range req.Files {
		cfg.WriteFiles = append(cfg.WriteFiles, writeFile{
			Path:        file.Path,
			Content:     file.Content,
			Permissions: permissions(file.Mode),
		})
	}
	if req.StoreMetadata && len(req.Metadata) > 0 {
		data, err := yaml.Marshal(req.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to render metadata: %w", err)
		}
		cfg.WriteFiles = append(cfg.WriteFiles, writeFile{Path: "/root/.metadata", Content: string(data)})
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to render cloud-config: %w", err)
	}
	return "#cloud-config\n" + string(out), nil
}

func permissions(mode int) string {
	if mode <= 0 {
		return ""
	}
	// Modes are written the way users think of them, 644 means 0644
	return "0" + fmt.Sprint(mode)
}

type ignitionFile struct {
	Path      string           `json:"path"`
	Mode      int              `json:"mode,omitempty"`
	Overwrite bool             `json:"overwrite"`
	Contents  ignitionContents `json:"contents"`
}

type ignitionContents struct {
	Source string `json:"source"`
}

type ignitionUnit struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Contents string `json:"contents"`
}

type ignitionUser struct {
	Name              string   `json:"name"`
	SSHAuthorizedKeys []string `json:"sshAuthorizedKeys,omitempty"`
}

type ignitionConfig struct {
	Ignition struct {
		Version string `json:"version"`
	} `json:"ignition"`
	Passwd struct {
		Users []ignitionUser `json:"users"`
	} `json:"passwd"`
	Storage struct {
		Files []ignitionFile `json:"files,omitempty"`
	} `json:"storage"`
	Systemd struct {
		Units []ignitionUnit `json:"units,omitempty"`
	} `json:"systemd"`
}

const firstBootScript = "/usr/local/bin/first-boot.sh"

// Ignition renders an ignition JSON document
func (g *Generator) Ignition(req Request) (string, error) {
	if req.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	cfg := ignitionConfig{}
	cfg.Ignition.Version = IgnitionVersion
	user := req.User
	if user == "" {
		user = "core"
	}
	cfg.Passwd.Users = []ignitionUser{{Name: user, SSHAuthorizedKeys: req.Keys}}
	if req.EnableRoot {
		cfg.Passwd.Users = append(cfg.Passwd.Users, ignitionUser{Name: "root", SSHAuthorizedKeys: req.Keys})
	}

	cfg.Storage.Files = append(cfg.Storage.Files, dataFile("/etc/hostname", req.FQDN()+"\n", 420))
	for _, file := range req.Files {
		cfg.Storage.Files = append(cfg.Storage.Files, dataFile(file.Path, file.Content, octal(file.Mode)))
	}
	if len(req.Cmds) > 0 {
		script := "#!/bin/sh\n" + strings.Join(req.Cmds, "\n") + "\n"
		cfg.Storage.Files = append(cfg.Storage.Files, dataFile(firstBootScript, script, 493))
		cfg.Systemd.Units = append(cfg.Systemd.Units, ignitionUnit{
			Name:    "first-boot.service",
			Enabled: true,
			Contents: "[Unit]\nDescription=First boot commands\nAfter=network-online.target\n" +
				"ConditionPathExists=!/var/lib/first-boot.done\n\n[Service]\nType=oneshot\n" +
				"ExecStart=" + firstBootScript + "\nExecStartPost=/usr/bin/touch /var/lib/first-boot.done\n\n" +
				"[Install]\nWantedBy=multi-user.target\n",
		})
	}

	out, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to render ignition: %w", err)
	}
	return string(out), nil
}

func dataFile(path, content string, mode int) ignitionFile {
	return ignitionFile{
		Path:      path,
		Mode:      mode,
		Overwrite: true,
		Contents:  ignitionContents{Source: "data:," + url.PathEscape(content)},
	}
}

// octal reads a user supplied mode such as 644 as an octal number
func octal(mode int) int {
	if mode <= 0 {
		return 420
	}
	out, base := 0, 1
	for mode > 0 {
		out += (mode % 10) * base
		mode /= 10
		base *= 8
	}
	return out
}

// KeyFinder looks up the local SSH public key
type KeyFinder struct {
	// Dirs are searched in order
	Dirs []string
	// Names are tried in order within each dir
	Names []string
}

// NewKeyFinder searches ~/.virtrigaud and ~/.ssh for rsa, dsa and ed25519 keys
func NewKeyFinder() *KeyFinder {
	home, _ := os.UserHomeDir()
	return &KeyFinder{
		Dirs:  []string{filepath.Join(home, ".virtrigaud"), filepath.Join(home, ".ssh")},
		Names: []string{"id_rsa.pub", "id_dsa.pub", "id_ed25519.pub"},
	}
}

// PublicKey returns the first public key found, or "" when none exists
func (f *KeyFinder) PublicKey() (string, error) {
	for _, dir := range f.Dirs {
		for _, name := range f.Names {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("failed to read public key: %w", err)
			}
			return strings.TrimSpace(string(data)), nil
		}
	}
	return "", nil
}

// MergeKeys puts the local key first and drops duplicates
func MergeKeys(local string, keys []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range append([]string{local}, keys...) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// SortedKeys returns the keys of m in order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
