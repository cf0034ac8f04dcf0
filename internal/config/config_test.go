package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func env(vals map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	assert.NilError(t, err)

	assert.Equal(t, cfg.Credentials.Host, "vws.vuforia.com")
	assert.Equal(t, cfg.Timeout, 30*time.Second)
	assert.Equal(t, cfg.LogLevel, logrus.InfoLevel)

	err = cfg.Validate()
	assert.Check(t, errors.Is(err, ErrMissingAccessKey))
	assert.Check(t, errors.Is(err, ErrMissingSecretKey))
}

func TestLoad(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		EnvHost:      "vws.example.com",
		EnvAccessKey: " AKID ",
		EnvSecretKey: "SECRET",
		EnvTimeout:   "5s",
		EnvLogLevel:  "debug",
	}))
	assert.NilError(t, err)

	assert.DeepEqual(t, cfg.Credentials, Credentials{AccessKey: "AKID", SecretKey: "SECRET", Host: "vws.example.com"})
	assert.Equal(t, cfg.Timeout, 5*time.Second)
	assert.Equal(t, cfg.LogLevel, logrus.DebugLevel)
	assert.NilError(t, cfg.Validate())
}

func TestLoadBlankHostUsesDefault(t *testing.T) {
	cfg, err := Load(env(map[string]string{EnvHost: "  "}))
	assert.NilError(t, err)
	assert.Equal(t, cfg.Credentials.Host, "vws.vuforia.com")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad timeout", env: map[string]string{EnvTimeout: "soon"}, want: "parse VWS_TIMEOUT"},
		{name: "negative timeout", env: map[string]string{EnvTimeout: "-1s"}, want: "must be positive"},
		{name: "bad level", env: map[string]string{EnvLogLevel: "loud"}, want: "parse VWS_LOG_LEVEL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(env(tc.env))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestCredentialsStringMasksKeys(t *testing.T) {
	c := Credentials{AccessKey: "AKID-REAL-KEY", SecretKey: "SUPERSECRET", Host: "vws.vuforia.com"}

	for _, s := range []string{c.String(), fmt.Sprint(c), fmt.Sprintf("%v", c), fmt.Sprintf("%+v", c), fmt.Sprintf("%#v", c)} {
		assert.Check(t, !strings.Contains(s, "SUPERSECRET"), "secret key leaked: %s", s)
		assert.Check(t, !strings.Contains(s, "AKID-REAL-KEY"), "access key leaked: %s", s)
		assert.Check(t, is.Contains(s, "access_key=*********-KEY"))
		assert.Check(t, is.Contains(s, "host=vws.vuforia.com"))
	}
}

func TestCredentialsStringShortAccessKey(t *testing.T) {
	c := Credentials{AccessKey: "AKID"}
	assert.Check(t, is.Contains(c.String(), "access_key=****"))
	assert.Check(t, !strings.Contains(c.String(), "AKID"))
}
