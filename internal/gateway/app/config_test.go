package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"GITHUB_TOKEN": "ghp_test",
		"GITHUB_OWNER": "acme",
		"GITHUB_REPO":  "scripts",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFrom(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	require.Equal(t, DriverFile, cfg.RegistryDriver)
	require.Equal(t, "/data/hwids.json", cfg.RegistryPath)
	require.Equal(t, "hwidgate:registry", cfg.RedisKey)
	require.Equal(t, "main.lua", cfg.GitHubPath)
	require.Equal(t, "https://api.github.com", cfg.UpstreamBaseURL)
	require.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	require.EqualValues(t, 8<<20, cfg.UpstreamMaxBytes)
	require.Equal(t, "/data/backup.lua", cfg.FallbackPath)
	require.Equal(t, "/data/access.log", cfg.AccessLogPath)
	require.Equal(t, 256, cfg.AccessLogBuffer)
	require.False(t, cfg.TrustProxyHeaders)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Parallel()

	environ := baseEnv()
	environ["PORT"] = "9090"
	environ["REGISTRY_DRIVER"] = "redis"
	environ["REDIS_URL"] = "redis://cache:6379/0"
	environ["UPSTREAM_TIMEOUT"] = "3s"
	environ["TRUST_PROXY_HEADERS"] = "true"

	cfg, err := LoadConfigFrom(environ)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, DriverRedis, cfg.RegistryDriver)
	require.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	require.True(t, cfg.TrustProxyHeaders)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(map[string]string)
		message string
	}{
		{"missing token", func(e map[string]string) { delete(e, "GITHUB_TOKEN") }, "GITHUB_TOKEN"},
		{"unknown driver", func(e map[string]string) { e["REGISTRY_DRIVER"] = "etcd" }, "REGISTRY_DRIVER"},
		{"redis without url", func(e map[string]string) { e["REGISTRY_DRIVER"] = "redis" }, "REDIS_URL"},
		{"plain http upstream", func(e map[string]string) { e["UPSTREAM_BASE_URL"] = "http://api.github.com" }, "UPSTREAM_BASE_URL"},
		{"zero timeout", func(e map[string]string) { e["UPSTREAM_TIMEOUT"] = "0s" }, "UPSTREAM_TIMEOUT"},
		{"port out of range", func(e map[string]string) { e["PORT"] = "70000" }, "PORT"},
		{"seed on file driver", func(e map[string]string) { e["REGISTRY_SEED_PATH"] = "/seed.json" }, "REGISTRY_SEED_PATH"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			environ := baseEnv()
			tc.mutate(environ)

			_, err := LoadConfigFrom(environ)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestLoadConfigParseError(t *testing.T) {
	t.Parallel()

	environ := baseEnv()
	environ["PORT"] = "eighty"

	_, err := LoadConfigFrom(environ)
	require.ErrorContains(t, err, "parse env")
}

func TestProtectedFiles(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFrom(baseEnv())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"backup.lua", "access.log", "hwids.json"}, cfg.ProtectedFiles())

	cfg.RegistryDriver = DriverRedis
	cfg.RegistrySeedPath = "/seed/grants.yaml"
	require.ElementsMatch(t, []string{"backup.lua", "access.log", "grants.yaml"}, cfg.ProtectedFiles())
}
