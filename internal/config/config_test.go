package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhealer/healer/healer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0640))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: info
log_directory: /var/log/healer
pid_file_directory: /var/run/healer
working_directory: /var/lib/healer
processes:
  - name: web
    command: /usr/bin/web
    args: ["--port", "8080"]
    run_as_user: web
    monitor:
      type: pid
      pid_file_path: /var/run/web.pid
      interval_secs: 5
    recovery:
      retries: 3
      retry_window_secs: 60
      cooldown_secs: 180
  - name: cache
    command: /usr/bin/cache
    run_as_root: true
    monitor:
      type: network
      url: "tcp://127.0.0.1:6379"
      interval_secs: 10
      timeout_secs: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Processes, 2)

	specs := cfg.ToSpecs()
	require.Len(t, specs, 2)

	web := specs[0]
	assert.Equal(t, "web", web.Name)
	assert.Equal(t, "web", web.RunAsUser)

	pidMon, ok := web.Monitor.(healer.PidMonitorSpec)
	require.True(t, ok, "web monitor type = %T, want PidMonitorSpec", web.Monitor)
	assert.Equal(t, 5*time.Second, pidMon.Interval)
	assert.EqualValues(t, 3, web.Recovery.Retries)
	assert.Equal(t, 180*time.Second, web.Recovery.Cooldown)

	cache := specs[1]
	netMon, ok := cache.Monitor.(healer.NetworkMonitorSpec)
	require.True(t, ok, "cache monitor type = %T, want NetworkMonitorSpec", cache.Monitor)
	assert.Equal(t, 2*time.Second, netMon.Timeout)
	// No recovery block was given for cache, so defaults apply.
	assert.Equal(t, healer.DefaultRecoverySpec().Retries, cache.Recovery.Retries)
}

func TestLoadRejectsUnknownMonitorType(t *testing.T) {
	path := writeConfig(t, `
log_directory: /var/log/healer
pid_file_directory: /var/run/healer
working_directory: /var/lib/healer
processes:
  - name: web
    command: /usr/bin/web
    monitor:
      type: carrier-pigeon
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeConfig(t, `
log_directory: /var/log/healer
pid_file_directory: /var/run/healer
working_directory: /var/lib/healer
processes:
  - name: web
    command: /usr/bin/web
    monitor: { type: pid, pid_file_path: /var/run/web.pid }
  - name: web
    command: /usr/bin/web2
    monitor: { type: pid, pid_file_path: /var/run/web2.pid }
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsConflictingPrivilegeDirectives(t *testing.T) {
	path := writeConfig(t, `
log_directory: /var/log/healer
pid_file_directory: /var/run/healer
working_directory: /var/lib/healer
processes:
  - name: web
    command: /usr/bin/web
    run_as_root: true
    run_as_user: nobody
    monitor: { type: pid, pid_file_path: /var/run/web.pid }
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadIgnoresDependencies(t *testing.T) {
	path := writeConfig(t, `
log_directory: /var/log/healer
pid_file_directory: /var/run/healer
working_directory: /var/lib/healer
processes:
  - name: web
    command: /usr/bin/web
    monitor: { type: pid, pid_file_path: /var/run/web.pid }
dependencies:
  - name: web
    requires: [cache]
    hard: true
    max_wait_secs: 30
    on_failure: skip
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Dependencies, 1, "dependencies parsed but unused")
}
