package sandbox

import (
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
)

// PullPolicy controls when the container image is pulled.
type PullPolicy string

const (
	PullAlways       PullPolicy = "Always"
	PullIfNotPresent PullPolicy = "IfNotPresent"
	PullNever        PullPolicy = "Never"
)

// MountMode is the workspace bind-mount mode.
type MountMode string

const (
	MountReadWrite MountMode = "rw"
	MountReadOnly  MountMode = "ro"
)

// CapDropAll is the sentinel accepted in CapDrop meaning "drop every
// capability".
const CapDropAll = "ALL"

// SecurityPolicy is the set of container-level isolation controls. It
// belongs to exactly one Environment and is immutable once a container has
// been created from it. The UID/GID override is also honored by the process
// backend, which applies it as the child's credential.
type SecurityPolicy struct {
	Image      string     `yaml:"image"`
	PullPolicy PullPolicy `yaml:"pull_policy"` // default IfNotPresent

	// NetworkMode is the daemon network mode ("none", "bridge", ...).
	// Default "none": executed code gets no network unless asked for.
	NetworkMode string `yaml:"network_mode"`

	// WorkspaceMount controls whether the bind-mounted workspace is
	// writable inside the container. Default rw.
	WorkspaceMount MountMode `yaml:"workspace_mount"`

	CPUShares int64  `yaml:"cpu_shares"`
	CPUPeriod int64  `yaml:"cpu_period"`
	CPUQuota  int64  `yaml:"cpu_quota"`
	PidsLimit *int64 `yaml:"pids_limit"`

	CapAdd  []string `yaml:"cap_add"`
	CapDrop []string `yaml:"cap_drop"`

	NoNewPrivileges bool `yaml:"no_new_privileges"`
	ReadonlyRootfs  bool `yaml:"readonly_rootfs"`

	UID *int64 `yaml:"uid"`
	GID *int64 `yaml:"gid"`
}

func (p *SecurityPolicy) validate() error {
	switch p.PullPolicy {
	case "", PullAlways, PullIfNotPresent, PullNever:
	default:
		return configErrorf("policy.pull_policy", "must be Always, IfNotPresent or Never, got %q", p.PullPolicy)
	}
	switch p.WorkspaceMount {
	case "", MountReadWrite, MountReadOnly:
	default:
		return configErrorf("policy.workspace_mount", "must be rw or ro, got %q", p.WorkspaceMount)
	}
	if p.CPUShares < 0 || p.CPUPeriod < 0 || p.CPUQuota < 0 {
		return configErrorf("policy.cpu", "cpu values must be positive")
	}
	if p.PidsLimit != nil && *p.PidsLimit <= 0 {
		return configErrorf("policy.pids_limit", "must be positive, got %d", *p.PidsLimit)
	}
	if p.UID != nil && *p.UID < 0 {
		return configErrorf("policy.uid", "must be non-negative, got %d", *p.UID)
	}
	if p.GID != nil && *p.GID < 0 {
		return configErrorf("policy.gid", "must be non-negative, got %d", *p.GID)
	}
	return nil
}

func (p *SecurityPolicy) pullPolicy() PullPolicy {
	if p.PullPolicy == "" {
		return PullIfNotPresent
	}
	return p.PullPolicy
}

func (p *SecurityPolicy) mountMode() MountMode {
	if p.WorkspaceMount == "" {
		return MountReadWrite
	}
	return p.WorkspaceMount
}

func (p *SecurityPolicy) networkMode() string {
	if p.NetworkMode == "" {
		return "none"
	}
	return p.NetworkMode
}

// userSpec composes the uid/gid override into the daemon's "uid[:gid]"
// user string. Empty when no override is configured.
func (p *SecurityPolicy) userSpec() string {
	if p.UID == nil {
		return ""
	}
	spec := strconv.FormatInt(*p.UID, 10)
	if p.GID != nil {
		spec += ":" + strconv.FormatInt(*p.GID, 10)
	}
	return spec
}

// containerConfig maps a prepared command onto the daemon container config.
// ImageDefaultCommand leaves the entrypoint untouched so the image's
// built-in command runs, with args appended.
func (p *SecurityPolicy) containerConfig(prepared *PreparedCommand) *container.Config {
	cfg := &container.Config{
		Image:      p.Image,
		Env:        flattenEnv(prepared.Env),
		WorkingDir: prepared.Dir,
		User:       p.userSpec(),
	}
	switch prepared.Mode {
	case ExplicitCommand:
		cfg.Cmd = strslice.StrSlice(append([]string{prepared.Path}, prepared.Args...))
	case ImageDefaultCommand:
		if len(prepared.Args) > 0 {
			cfg.Cmd = strslice.StrSlice(prepared.Args)
		}
	}
	return cfg
}

// hostConfig maps the policy (plus the effective memory ceiling) onto the
// daemon host config: workspace bind mount, network mode, cgroup ceilings,
// capability lists and the privilege/rootfs flags.
func (p *SecurityPolicy) hostConfig(workspace string, memoryMB int64) *container.HostConfig {
	hc := &container.HostConfig{
		Binds:       []string{fmt.Sprintf("%s:%s:%s", workspace, containerWorkdir, p.mountMode())},
		NetworkMode: container.NetworkMode(p.networkMode()),
		Resources: container.Resources{
			CPUShares: p.CPUShares,
			CPUPeriod: p.CPUPeriod,
			CPUQuota:  p.CPUQuota,
			PidsLimit: p.PidsLimit,
		},
		ReadonlyRootfs: p.ReadonlyRootfs,
	}
	if memoryMB > 0 {
		hc.Resources.Memory = memoryMB * 1024 * 1024
	}
	if len(p.CapDrop) == 1 && p.CapDrop[0] == CapDropAll {
		hc.CapDrop = strslice.StrSlice{"ALL"}
	} else if len(p.CapDrop) > 0 {
		hc.CapDrop = strslice.StrSlice(p.CapDrop)
	}
	if len(p.CapAdd) > 0 {
		hc.CapAdd = strslice.StrSlice(p.CapAdd)
	}
	if p.NoNewPrivileges {
		hc.SecurityOpt = append(hc.SecurityOpt, "no-new-privileges")
	}
	return hc
}
