package config

import (
	"testing"

	"github.com/op/go-logging"
)

func TestSetupLoggingHonorsLogLevelEnv(t *testing.T) {
	t.Setenv("DIRECT_LOG_LEVEL", "DEBUG")
	log := SetupLogging("direct-test", logging.WARNING, false)
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
	if got := logging.GetLevel("direct-test"); got != logging.DEBUG {
		t.Fatalf("expected DIRECT_LOG_LEVEL=DEBUG to win over the default, got %v", got)
	}
}

func TestSetupLoggingDefaultsWithoutEnv(t *testing.T) {
	t.Setenv("DIRECT_LOG_LEVEL", "")
	SetupLogging("direct-test-default", logging.ERROR, false)
	if got := logging.GetLevel("direct-test-default"); got != logging.ERROR {
		t.Fatalf("expected the caller-supplied default level, got %v", got)
	}
}
